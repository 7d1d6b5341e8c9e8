package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pipedag/pipedag-engine/internal/lockmanager"
	"github.com/pipedag/pipedag-engine/internal/stageregistry"
)

// Handlers serves the read-only introspection surface: /healthz,
// /stages, /locks. It never mutates the registry or lock backend it's
// given.
type Handlers struct {
	registry *stageregistry.Registry
	locks    lockmanager.Backend
}

func NewHandlers(registry *stageregistry.Registry, locks lockmanager.Backend) *Handlers {
	return &Handlers{registry: registry, locks: locks}
}

func (h *Handlers) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

type stageView struct {
	Name           string `json:"name"`
	WorkingName    string `json:"working_name"`
	Swapped        bool   `json:"swapped"`
	SwapInProgress bool   `json:"swap_in_progress"`
}

// ListStages reports every registered stage and its swap lifecycle state.
func (h *Handlers) ListStages(c *gin.Context) {
	statuses := h.registry.List()
	out := make([]stageView, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, stageView{
			Name:           s.Stage.Name,
			WorkingName:    s.Stage.WorkingName,
			Swapped:        s.Swapped,
			SwapInProgress: s.SwapInProgress,
		})
	}
	respondOK(c, gin.H{"stages": out})
}

// ListLocks reports every lockable with a non-UNLOCKED entry. A lockable
// absent from this snapshot is UNLOCKED by definition — the lock-state
// machine never materialises an entry for a lockable just because it
// was queried.
func (h *Handlers) ListLocks(c *gin.Context) {
	if h.locks == nil {
		respondOK(c, gin.H{"locks": gin.H{}})
		return
	}
	respondOK(c, gin.H{"locks": h.locks.Snapshot()})
}
