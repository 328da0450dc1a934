package usecase

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/allosh/allosh-market-service/internal/apperror"
)

func workbook(t *testing.T, rows ...[]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return buf
}

func header() []any {
	out := make([]any, len(importHeader))
	for i, h := range importHeader {
		out[i] = h
	}
	return out
}

func TestImportInventory(t *testing.T) {
	repo := newMemRepo()
	repo.seed("p1", "A", 10, 0, 0)
	uc := newTestUseCase(repo)

	buf := workbook(t,
		header(),
		[]any{"p1", "A", 25.5, "", 4, 2, "true"},
		[]any{"p2", "B", 12, 10, 7, "", ""},
		[]any{"p3", "", 1, "", 1, "", ""},
		[]any{"p4", "A", "abc", "", 1, "", ""},
		[]any{},
		[]any{"p5", "A", 3, "", -1, "", ""},
	)

	res, err := uc.ImportInventory(context.Background(), buf, "admin-1")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Imported != 2 || res.Skipped != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
	wantRows := []int{4, 5, 7}
	for i, e := range res.Errors {
		if e.Row != wantRows[i] {
			t.Fatalf("error %d reported for row %d, want %d", i, e.Row, wantRows[i])
		}
	}

	p1, _ := repo.row("p1", "A")
	if p1.StockQuantity != 4 || p1.Price != 25.5 || p1.MinStockAlert != 2 {
		t.Fatalf("p1 not updated: %+v", p1)
	}
	p2, ok := repo.row("p2", "B")
	if !ok || p2.StockQuantity != 7 || p2.DiscountPrice == nil || *p2.DiscountPrice != 10 {
		t.Fatalf("p2 not created: %+v", p2)
	}

	if len(repo.movements) != 2 {
		t.Fatalf("expected 2 adjustment movements, got %d", len(repo.movements))
	}
	if repo.movements[0].Quantity != 6 || repo.movements[0].FromBranchID == nil {
		t.Fatalf("stock decrease should be logged from the branch: %+v", repo.movements[0])
	}
}

func TestImportInventory_BadHeader(t *testing.T) {
	uc := newTestUseCase(newMemRepo())

	tests := []struct {
		name string
		body *bytes.Buffer
	}{
		{"wrong columns", workbook(t, []any{"sku", "branch"})},
		{"empty sheet", workbook(t)},
		{"not a workbook", bytes.NewBufferString("product_id,branch_id")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.ImportInventory(context.Background(), tt.body, "admin-1")
			if !apperror.IsKind(err, apperror.KindValidationFailed) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestParseImportRow(t *testing.T) {
	tests := []struct {
		row     []string
		wantErr bool
	}{
		{[]string{"p", "b", "1", "", "0"}, false},
		{[]string{"p", "b", "1", "0.5", "3", "1", "FALSE"}, false},
		{[]string{"p", "b", "-1", "", "0"}, true},
		{[]string{"p", "b", "1", "x", "0"}, true},
		{[]string{"p", "b", "1", "", "1.5"}, true},
		{[]string{"p", "b", "1", "", "1", "", "maybe"}, true},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			_, err := parseImportRow(tt.row)
			if (err != nil) != tt.wantErr {
				t.Fatalf("row %v: err=%v wantErr=%v", tt.row, err, tt.wantErr)
			}
		})
	}
}
