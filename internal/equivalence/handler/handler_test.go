package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gradenorm/internal/equivalence/service"
	estore "gradenorm/internal/equivalence/store"
	id "gradenorm/pkg/domain"
	"gradenorm/pkg/testutil"
)

func newRouter() http.Handler {
	r := chi.NewRouter()
	h := New(service.New(estore.NewInMemory()), slog.Default())
	h.Register(r)
	return r
}

func TestHandleAdd(t *testing.T) {
	router := newRouter()
	a := uuid.NewString()
	b := uuid.NewString()

	t.Run("adds an edge", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/equivalences",
			addEquivalenceRequest{SubjectA: a, SubjectB: b, LevelStage: 12})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	t.Run("duplicate add is fine", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/equivalences",
			addEquivalenceRequest{SubjectA: b, SubjectB: a, LevelStage: 12})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	t.Run("self equivalence rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/equivalences",
			addEquivalenceRequest{SubjectA: a, SubjectB: a, LevelStage: 12})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "self_equivalence")
	})

	t.Run("malformed subject id rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/equivalences",
			addEquivalenceRequest{SubjectA: "not-a-uuid", SubjectB: b, LevelStage: 12})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})

	t.Run("level stage out of range rejected", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/equivalences",
			addEquivalenceRequest{SubjectA: a, SubjectB: b, LevelStage: 99})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_input")
	})
}

func TestHandleEquivalents(t *testing.T) {
	router := newRouter()
	a := uuid.NewString()
	b := uuid.NewString()
	c := uuid.NewString()

	for _, pair := range [][2]string{{a, b}, {b, c}} {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/equivalences",
			addEquivalenceRequest{SubjectA: pair[0], SubjectB: pair[1], LevelStage: 12})
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	}

	type equivalentsResponse struct {
		SubjectID   id.SubjectID   `json:"subject_id"`
		LevelStage  int            `json:"level_stage"`
		Equivalents []id.SubjectID `json:"equivalents"`
	}

	t.Run("closure is transitive", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet,
			fmt.Sprintf("/equivalences/%s?levelStage=12", a))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)

		resp := testutil.UnmarshalResponse[equivalentsResponse](t, rr)
		assert.Equal(t, 12, resp.LevelStage)
		require.Len(t, resp.Equivalents, 2)
	})

	t.Run("isolated subject yields an empty list, not null", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet,
			fmt.Sprintf("/equivalences/%s?levelStage=12", uuid.NewString()))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusOK)
		assert.Contains(t, string(testutil.ReadBody(t, rr)), `"equivalents":[]`)
	})

	t.Run("missing levelStage rejected", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodGet, "/equivalences/"+a)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}

func TestHandleRemove(t *testing.T) {
	router := newRouter()
	a := uuid.NewString()
	b := uuid.NewString()

	req := testutil.NewJSONRequest(t, http.MethodPost, "/equivalences",
		addEquivalenceRequest{SubjectA: a, SubjectB: b, LevelStage: 12})
	testutil.AssertStatus(t, testutil.DoRequest(router, req), http.StatusNoContent)

	t.Run("removes every incident edge", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodDelete,
			fmt.Sprintf("/equivalences/%s?levelStage=12", a))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)

		listReq := testutil.NewRequest(t, http.MethodGet, "/equivalences?levelStage=12")
		listRR := testutil.DoRequest(router, listReq)
		testutil.AssertStatus(t, listRR, http.StatusOK)
		assert.Contains(t, string(testutil.ReadBody(t, listRR)), `"items":[]`)
	})

	t.Run("removing an isolated subject is silent", func(t *testing.T) {
		req := testutil.NewRequest(t, http.MethodDelete,
			fmt.Sprintf("/equivalences/%s?levelStage=12", uuid.NewString()))
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})
}
