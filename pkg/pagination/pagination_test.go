package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func ctxWithQuery(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestFromContextDefaults(t *testing.T) {
	p := FromContext(ctxWithQuery(""))
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Fatalf("got %+v, want default limit %d offset 0", p, DefaultLimit)
	}
}

func TestFromContextExplicit(t *testing.T) {
	p := FromContext(ctxWithQuery("limit=50&offset=10"))
	if p.Limit != 50 || p.Offset != 10 {
		t.Fatalf("got %+v, want limit 50 offset 10", p)
	}
}

func TestFromContextCapsLimit(t *testing.T) {
	p := FromContext(ctxWithQuery("limit=5000"))
	if p.Limit != MaxLimit {
		t.Fatalf("limit = %d, want capped at %d", p.Limit, MaxLimit)
	}
}

func TestFromContextNegativeValues(t *testing.T) {
	p := FromContext(ctxWithQuery("limit=-1&offset=-5"))
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Fatalf("got %+v, want defaults for negative inputs", p)
	}
}

func TestSQL(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if got := p.SQL(); got != "LIMIT 20 OFFSET 40" {
		t.Fatalf("SQL() = %q", got)
	}
}

func TestHasNext(t *testing.T) {
	p := Params{Limit: 20, Offset: 0}
	if !p.HasNext(21) {
		t.Error("expected next page when total exceeds window")
	}
	if p.HasNext(20) {
		t.Error("expected no next page when window covers total")
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 50, 20, 0)
	if !r.HasMore {
		t.Error("expected HasMore for partial page")
	}
	if r.Total != 50 {
		t.Errorf("Total = %d", r.Total)
	}
}
