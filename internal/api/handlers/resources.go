// Package handlers implements the resource access endpoint: a three-verb
// HTTP surface that fetches, replaces, and deletes stored blobs by rid.
package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stagelink/server/internal/broker"
)

// ResourceHandler serves resource blobs for the broker.
type ResourceHandler struct {
	broker *broker.Broker
	log    zerolog.Logger
}

// NewResourceHandler creates the handler.
func NewResourceHandler(b *broker.Broker, log zerolog.Logger) *ResourceHandler {
	return &ResourceHandler{
		broker: b,
		log:    log,
	}
}

// Get streams the backing file for a rid. Pending entries and entries whose
// file is gone report 404: there is nothing to fetch yet.
func (h *ResourceHandler) Get(c *gin.Context) {
	rid := c.Param("rid")

	e, ok := h.broker.Entry(rid)
	if !ok || e.Path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if _, err := os.Stat(e.Path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	if e.Mime != "" {
		c.Header("Content-Type", e.Mime)
	}
	c.File(e.Path)
}

// Put replaces the content for a rid: the request body is streamed into the
// blob, the digest is recomputed from the received bytes, and the entry is
// flipped to ready with the observed size. This is how an upload reservation
// made over the control channel is fulfilled.
func (h *ResourceHandler) Put(c *gin.Context) {
	rid := c.Param("rid")

	e, ok := h.broker.Entry(rid)
	if !ok || e.Path == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	size, digest, err := h.broker.WriteBlob(e.Path, c.Request.Body)
	if err != nil {
		h.log.Error().Err(err).Str("rid", rid).Msg("upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store content"})
		return
	}

	if _, ok := h.broker.MarkUploaded(rid, size, digest); !ok {
		// Released while the body was streaming; the blob is unreferenced.
		os.Remove(e.Path)
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rid": rid, "size": size})
}

// Delete releases the resource: backing file removed, entry dropped.
func (h *ResourceHandler) Delete(c *gin.Context) {
	rid := c.Param("rid")

	if !h.broker.Release(rid) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"rid": rid, "released": true})
}
