package handlers

import (
	"net/http"
	"strconv"

	"github.com/irgordon/karidc/api/internal/core/domain"
	"github.com/irgordon/karidc/api/internal/core/services"
)

type batchQuery struct {
	Host   string `validate:"omitempty,max=255"`
	Server string `validate:"omitempty,max=255"`
	State  string `validate:"omitempty,oneof=COMMITTED ROLLED_BACK"`
	Limit  int    `validate:"gte=0,lte=100"`
	Offset int    `validate:"gte=0"`
}

type batchPage struct {
	Total   int                  `json:"total"`
	Batches []domain.BatchRecord `json:"batches"`
}

// BatchHandler serves the batch journal. Without a journal it falls back to
// the controller's recent reports.
type BatchHandler struct {
	Journal    domain.BatchJournal
	Controller *services.Controller
}

func NewBatchHandler(journal domain.BatchJournal, c *services.Controller) *BatchHandler {
	return &BatchHandler{Journal: journal, Controller: c}
}

// List handles GET /api/v1/batches
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := batchQuery{Host: q.Get("host"), Server: q.Get("server"), State: q.Get("state")}
	for key, dst := range map[string]*int{"limit": &req.Limit, "offset": &req.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				HandleError(w, r, domain.UpdateFailed("%s must be a number", key))
				return
			}
			*dst = n
		}
	}
	if err := validate.Struct(req); err != nil {
		HandleError(w, r, err)
		return
	}
	filter := domain.BatchFilter(req)

	if h.Journal != nil {
		records, total, err := h.Journal.List(r.Context(), filter)
		if err != nil {
			HandleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, batchPage{Total: total, Batches: records})
		return
	}
	writeJSON(w, http.StatusOK, recentPage(h.Controller.Reports(0), filter))
}

func recentPage(reports []*services.BatchReport, f domain.BatchFilter) batchPage {
	page := batchPage{Batches: []domain.BatchRecord{}}
	limit := f.Limit
	if limit == 0 {
		limit = 50
	}
	for _, rep := range reports {
		rec := services.JournalRecord(rep)
		if (f.Host != "" && rec.Host != f.Host) || (f.Server != "" && rec.Server != f.Server) ||
			(f.State != "" && rec.State != f.State) {
			continue
		}
		if page.Total >= f.Offset && len(page.Batches) < limit {
			page.Batches = append(page.Batches, *rec)
		}
		page.Total++
	}
	return page
}
