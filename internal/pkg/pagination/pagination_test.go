package pagination

import "testing"

func TestNewOffsetRequest(t *testing.T) {
	tests := []struct {
		name         string
		page         int
		pageSize     int
		wantPage     int
		wantPageSize int
		wantOffset   int
	}{
		{name: "defaults", page: 0, pageSize: 0, wantPage: 1, wantPageSize: DefaultLimit, wantOffset: 0},
		{name: "second page", page: 2, pageSize: 10, wantPage: 2, wantPageSize: 10, wantOffset: 10},
		{name: "negative page", page: -3, pageSize: 5, wantPage: 1, wantPageSize: 5, wantOffset: 0},
		{name: "over max", page: 1, pageSize: MaxLimit + 1, wantPage: 1, wantPageSize: DefaultLimit, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewOffsetRequest(tt.page, tt.pageSize)
			if req.GetPage() != tt.wantPage {
				t.Errorf("GetPage() = %d, want %d", req.GetPage(), tt.wantPage)
			}
			if req.GetPageSize() != tt.wantPageSize {
				t.Errorf("GetPageSize() = %d, want %d", req.GetPageSize(), tt.wantPageSize)
			}
			if req.GetOffset() != tt.wantOffset {
				t.Errorf("GetOffset() = %d, want %d", req.GetOffset(), tt.wantOffset)
			}
		})
	}
}

func TestParseOffsetRequest(t *testing.T) {
	req := ParseOffsetRequest("3", "abc", "asc")
	if req.GetPage() != 3 || req.GetPageSize() != DefaultLimit || req.GetSortOrder() != ASC {
		t.Errorf("unexpected request %+v", req)
	}
	if ParseOffsetRequest("", "", "").GetSortOrder() != DESC {
		t.Error("expected DESC by default")
	}
}

func TestBuildOffsetResponse(t *testing.T) {
	tests := []struct {
		name      string
		page      int
		total     int64
		wantPages int
		wantNext  bool
		wantPrev  bool
	}{
		{name: "empty", page: 1, total: 0, wantPages: 0, wantNext: false, wantPrev: false},
		{name: "first of three", page: 1, total: 25, wantPages: 3, wantNext: true, wantPrev: false},
		{name: "last page", page: 3, total: 25, wantPages: 3, wantNext: false, wantPrev: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := NewOffsetRequest(tt.page, 10)
			resp := BuildOffsetResponse[int](nil, req, tt.total)
			if resp.TotalPages != tt.wantPages {
				t.Errorf("TotalPages = %d, want %d", resp.TotalPages, tt.wantPages)
			}
			if resp.HasNext != tt.wantNext {
				t.Errorf("HasNext = %v, want %v", resp.HasNext, tt.wantNext)
			}
			if resp.HasPrev != tt.wantPrev {
				t.Errorf("HasPrev = %v, want %v", resp.HasPrev, tt.wantPrev)
			}
			if resp.Items == nil {
				t.Error("expected non-nil items")
			}
		})
	}
}

func TestSQLOrderBy(t *testing.T) {
	if got := SQLOrderBy("created_at", DESC); got != "created_at DESC, id DESC" {
		t.Errorf("SQLOrderBy() = %q", got)
	}
	if got := SQLOrderBy("created_at", SortOrder("; DROP")); got != "created_at DESC, id DESC" {
		t.Errorf("SQLOrderBy() = %q", got)
	}
}
