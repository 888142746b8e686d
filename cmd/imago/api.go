// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/poiesic/imago/core"
	"github.com/poiesic/imago/storage"
)

// maxImageBytes bounds uploads; CLIP-style encoders downscale anyway.
const maxImageBytes = 32 << 20

// ingestor is the slice of the pipeline the API needs.
type ingestor interface {
	Dispatch(ctx context.Context, image []byte, fileName string) (*core.Task, error)
	GetStatus(ctx context.Context, taskID string) (*core.Task, error)
}

type taskResultResponse struct {
	ID       string `json:"id"`
	FileName string `json:"file_name"`
}

type taskResponse struct {
	TaskID    string              `json:"task_id"`
	Status    string              `json:"status"`
	Result    *taskResultResponse `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toTaskResponse(task *core.Task) taskResponse {
	resp := taskResponse{
		TaskID:    task.ID,
		Status:    task.Status.String(),
		Error:     task.Error,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}
	if task.Result != nil {
		resp.Result = &taskResultResponse{
			ID:       task.Result.ID,
			FileName: task.Result.FileName,
		}
	}
	return resp
}

func newRouter(ing ingestor) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = maxImageBytes

	v1 := router.Group("/api/v1")
	v1.POST("/ingest", handleIngest(ing))
	v1.GET("/ingest/:task_id", handleStatus(ing))

	return router
}

// handleIngest accepts a multipart upload under the "image" field and
// registers it for async processing. Responds 202 with the task ID.
func handleIngest(ing ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		fileHeader, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'image' required"})
			return
		}
		if fileHeader.Size > maxImageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image too large"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
			return
		}
		defer file.Close()

		image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read upload"})
			return
		}

		task, err := ing.Dispatch(c.Request.Context(), image, fileHeader.Filename)
		if err != nil {
			if errors.Is(err, core.ErrEmptyImage) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "image is empty"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register task"})
			return
		}

		c.JSON(http.StatusAccepted, toTaskResponse(task))
	}
}

// handleStatus reports the task state by ID.
func handleStatus(ing ingestor) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := ing.GetStatus(c.Request.Context(), c.Param("task_id"))
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read task"})
			return
		}

		c.JSON(http.StatusOK, toTaskResponse(task))
	}
}
