package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ParamConversationID reads a conversation id path param. Ids are UUIDs, so
// anything else cannot exist and answers 404.
func ParamConversationID(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if v == "" {
		RespondAPIError(c, newAPIError(ErrorValidationFailed, name+" is required", nil))
		return "", false
	}
	id, err := uuid.Parse(v)
	if err != nil {
		RespondAPIError(c, newAPIError(ErrorNotFound, "conversation not found", err))
		return "", false
	}
	return id.String(), true
}
