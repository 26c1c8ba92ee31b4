package controllers

import (
	"encoding/xml"

	"github.com/gin-gonic/gin"
)

func RespondError(c *gin.Context, msg string, code int) {
	c.JSON(code, gin.H{"error": msg})
}

func RespondSuccess(c *gin.Context, payload any) {
	c.JSON(200, payload)
}

// RespondXML writes v as an XML document with the standard header (TwiML acknowledgments).
func RespondXML(c *gin.Context, code int, v any) error {
	body, err := xml.Marshal(v)
	if err != nil {
		return err
	}
	c.Data(code, "text/xml", append([]byte(xml.Header), body...))
	return nil
}
