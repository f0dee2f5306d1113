package handler

import (
	"net/http"
	"strconv"
	"time"

	"codeclash/backend/internal/database"
	"codeclash/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type TagInput struct {
	Key  string `json:"key" binding:"required"`
	Name string `json:"name" binding:"required"`
}

type TagResponse struct {
	ID        uint      `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
}

func newTagResponse(tag models.Tag) TagResponse {
	return TagResponse{
		ID:        tag.ID,
		CreatedAt: tag.CreatedAt,
		UpdatedAt: tag.UpdatedAt,
		Key:       tag.Key,
		Name:      tag.Name,
	}
}

// CreateTag creates a new problem tag. Admin only.
func CreateTag(c *gin.Context) {
	var input TagInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tag := models.Tag{Key: input.Key, Name: input.Name}
	if err := database.DB.Create(&tag).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Tag already exists or another error occurred"})
		return
	}

	c.JSON(http.StatusCreated, newTagResponse(tag))
}

// GetTags retrieves all problem tags.
func GetTags(c *gin.Context) {
	var tags []models.Tag
	database.DB.Find(&tags)

	var response []TagResponse
	for _, tag := range tags {
		response = append(response, newTagResponse(tag))
	}
	c.JSON(http.StatusOK, response)
}

// UpdateTag updates the display name of an existing tag. Admin only.
func UpdateTag(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	var input TagInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var tag models.Tag
	if err := database.DB.First(&tag, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tag not found"})
		return
	}

	database.DB.Model(&tag).Updates(map[string]interface{}{"key": input.Key, "name": input.Name})
	c.JSON(http.StatusOK, newTagResponse(tag))
}

// DeleteTag deletes an existing tag. Admin only.
func DeleteTag(c *gin.Context) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return
	}

	result := database.DB.Delete(&models.Tag{}, id)
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tag not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Tag deleted"})
}
