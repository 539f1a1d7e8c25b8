package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, target string) Params {
	t.Helper()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, target, nil), httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "/")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_Offset(t *testing.T) {
	p := paramsFor(t, "/?limit=10&offset=30")
	if p.Limit != 10 || p.Offset != 30 {
		t.Errorf("expected limit 10 offset 30, got %+v", p)
	}
}

func TestFromContext_Page(t *testing.T) {
	p := paramsFor(t, "/?limit=20&page=3")
	if p.Offset != 40 {
		t.Errorf("expected offset 40 for page 3, got %d", p.Offset)
	}
	if p.Page() != 3 {
		t.Errorf("expected page 3, got %d", p.Page())
	}
}

func TestFromContext_PageWinsOverOffset(t *testing.T) {
	p := paramsFor(t, "/?limit=10&page=2&offset=99")
	if p.Offset != 10 {
		t.Errorf("expected page to win, got offset %d", p.Offset)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	p := paramsFor(t, "/?limit=1000&offset=-5")
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected negative offset clamped to 0, got %d", p.Offset)
	}

	p = paramsFor(t, "/?limit=abc&page=0")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("expected defaults for garbage input, got %+v", p)
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 45, 20, 20)
	if r.Page != 2 {
		t.Errorf("expected page 2, got %d", r.Page)
	}
	if r.Pages != 3 {
		t.Errorf("expected 3 pages, got %d", r.Pages)
	}
	if !r.HasMore {
		t.Error("expected HasMore")
	}

	last := NewResponse(nil, 45, 20, 40)
	if last.HasMore {
		t.Error("expected no more after the last page")
	}

	empty := NewResponse(nil, 0, 20, 0)
	if empty.Pages != 0 || empty.HasMore {
		t.Errorf("unexpected empty response %+v", empty)
	}
}
