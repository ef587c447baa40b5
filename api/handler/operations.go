package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/harvest/sites"
)

type operationInfo struct {
	Site        string        `json:"site"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Inputs      []sites.Input `json:"inputs"`
}

// Operations returns a handler for GET /api/v1/operations.
func Operations(reg *sites.Registry) gin.HandlerFunc {
	var list []operationInfo
	for _, op := range reg.All() {
		list = append(list, operationInfo{
			Site:        op.Site,
			Name:        op.Name,
			Description: op.Description,
			Inputs:      op.Inputs,
		})
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sites": reg.Sites(), "operations": list})
	}
}
