// Copyright 2025 The Ledgr Authors
// SPDX-License-Identifier: Apache-2.0

package gsheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/popand/ledgr"
)

func newTestClient(baseURL string) *Client {
	return NewClient(&Config{
		Title:    "Ledgr Expenses",
		BaseURL:  baseURL,
		DriveURL: baseURL,
		HTTP:     http.DefaultClient,
	})
}

func testExpense() *ledgr.Expense {
	e := ledgr.NewExpense("Blue Bottle Coffee", time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), 12.50, "CAD")
	e.Category = ledgr.CategoryFoodAndDining
	e.PaymentMethod = "Visa"
	e.Notes = "team coffee"
	e.LineItems = []ledgr.LineItem{
		{Description: "Latte", Amount: 6.50},
		{Description: "Croissant", Amount: 6.00},
	}
	return e
}

func TestEnsureSpreadsheet_CreatesWhenMissing(t *testing.T) {
	var gotTitle string
	var headerRow []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.URL.Path == "/files":
			q := r.URL.Query().Get("q")
			require.Contains(t, q, "name='Ledgr Expenses'")
			require.Contains(t, q, "application/vnd.google-apps.spreadsheet")
			fmt.Fprint(w, `{"files":[]}`)
		case r.Method == "POST" && r.URL.Path == "/":
			var payload struct {
				Properties struct {
					Title string `json:"title"`
				} `json:"properties"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			gotTitle = payload.Properties.Title
			fmt.Fprint(w, `{"spreadsheetId":"sheet-9"}`)
		case strings.HasSuffix(r.URL.Path, "/values/Sheet1!A1:J1"):
			fmt.Fprint(w, `{}`) // first row still empty
		case strings.Contains(r.URL.Path, ":append"):
			var payload struct {
				Values [][]any `json:"values"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			require.Len(t, payload.Values, 1)
			headerRow = payload.Values[0]
			fmt.Fprint(w, `{"updates":{"updatedRange":"Sheet1!A1:J1"}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	id, err := c.EnsureSpreadsheet(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "sheet-9", id)
	require.Equal(t, "Ledgr Expenses", gotTitle)

	require.Len(t, headerRow, len(Headers))
	for i, h := range Headers {
		require.Equal(t, h, headerRow[i])
	}
}

func TestEnsureSpreadsheet_ResolvesExisting(t *testing.T) {
	var created int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/files":
			fmt.Fprint(w, `{"files":[{"id":"sheet-7"}]}`)
		case strings.HasSuffix(r.URL.Path, "/values/Sheet1!A1:J1"):
			fmt.Fprint(w, `{"values":[["Date","Merchant"]]}`)
		case r.Method == "POST" && r.URL.Path == "/":
			created++
			fmt.Fprint(w, `{"spreadsheetId":"sheet-dup"}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	// Two sessions, as two process runs would be: neither may create.
	for i := 0; i < 2; i++ {
		c := newTestClient(srv.URL)
		id, err := c.EnsureSpreadsheet(context.Background(), "tok")
		require.NoError(t, err)
		require.Equal(t, "sheet-7", id)
	}
	require.Zero(t, created, "existing spreadsheet must be resolved, not recreated")
}

func TestEnsureSpreadsheet_RepairsMissingHeader(t *testing.T) {
	var headerAppended bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/files":
			fmt.Fprint(w, `{"files":[{"id":"sheet-7"}]}`)
		case strings.HasSuffix(r.URL.Path, "/values/Sheet1!A1:J1"):
			fmt.Fprint(w, `{}`)
		case strings.Contains(r.URL.Path, ":append"):
			headerAppended = true
			fmt.Fprint(w, `{"updates":{"updatedRange":"Sheet1!A1:J1"}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	id, err := c.EnsureSpreadsheet(context.Background(), "tok")
	require.NoError(t, err)
	require.Equal(t, "sheet-7", id)
	require.True(t, headerAppended, "a headerless spreadsheet gets its header written")
}

func TestAppendExpense(t *testing.T) {
	var row []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
		require.Contains(t, r.URL.Path, "sheet-9")
		var payload struct {
			Values [][]any `json:"values"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		row = payload.Values[0]
		fmt.Fprint(w, `{"updates":{"updatedRange":"Sheet1!A7:J7"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	rowID, err := c.AppendExpense(context.Background(), testExpense(),
		"https://drive.google.com/file/d/f1/view", "sheet-9", "tok")
	require.NoError(t, err)
	require.Equal(t, int64(7), rowID)

	require.Len(t, row, 10)
	require.Equal(t, "2025-03-14", row[0])
	require.Equal(t, "Blue Bottle Coffee", row[1])
	require.Equal(t, "Food & Dining", row[2])
	require.Equal(t, 12.50, row[3])
	require.Equal(t, "CAD", row[4])
	require.Equal(t, "Visa", row[5])
	require.Equal(t, "Latte: $6.50; Croissant: $6.00", row[6])
	require.Equal(t, "team coffee", row[7])
	require.Equal(t, `=HYPERLINK("https://drive.google.com/file/d/f1/view","View Receipt")`, row[8])
}

func TestAppendExpense_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"backend error"}}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.AppendExpense(context.Background(), testExpense(), "", "sheet-9", "tok")

	var sheetsErr *ledgr.SheetsError
	require.ErrorAs(t, err, &sheetsErr)
	require.Equal(t, http.StatusInternalServerError, sheetsErr.StatusCode)
	require.Contains(t, sheetsErr.Body, "backend error")
}

func TestDeleteExpenseRow_MatchesContent(t *testing.T) {
	// The expense's stored row id is stale (an earlier row was deleted); the
	// lookup must find the row by content, not by the recorded index.
	sheet := `{"values":[
		["Date","Merchant","Category","Amount","Currency"],
		["2025-03-10","Metro","Shopping","$30.00","CAD"],
		["2025-03-14","Blue Bottle Coffee","Food & Dining","$12.50","CAD"],
		["2025-03-15","Shell","Travel","$60.00","CAD"]
	]}`

	var gotPayload string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "GET":
			require.True(t, strings.HasSuffix(r.URL.Path, "/values/Sheet1!A:J"))
			fmt.Fprint(w, sheet)
		default:
			require.True(t, strings.HasSuffix(r.URL.Path, ":batchUpdate"))
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			gotPayload = string(body)
			fmt.Fprint(w, `{}`)
		}
	}))
	defer srv.Close()

	e := testExpense()
	e.SheetsRowID = 7 // stale

	c := newTestClient(srv.URL)
	require.NoError(t, c.DeleteExpenseRow(context.Background(), e, "sheet-9", "tok"))
	require.Contains(t, gotPayload, `"deleteDimension"`)
	require.Contains(t, gotPayload, `"startIndex":2`)
	require.Contains(t, gotPayload, `"endIndex":3`)
}

func TestDeleteExpenseRow_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GET", r.Method, "no delete may be issued without a match")
		fmt.Fprint(w, `{"values":[["Date","Merchant","Category","Amount"]]}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.DeleteExpenseRow(context.Background(), testExpense(), "sheet-9", "tok")
	require.ErrorIs(t, err, ledgr.ErrNotFound)
}

func TestFindExpenseRow(t *testing.T) {
	e := testExpense() // 2025-03-14, Blue Bottle Coffee, 12.50
	rows := [][]any{
		{"Date", "Merchant", "Category", "Amount"},
		{"2025-03-14", "Blue Bottle Coffee", "Food & Dining", 12.5},
		{"2025-03-14", "Blue Bottle Coffee", "Food & Dining", "$12.50"},
	}

	if got := findExpenseRow(rows, e); got != 2 {
		t.Errorf("findExpenseRow() = %d, want 2 (first match wins)", got)
	}
	if got := findExpenseRow(rows[:1], e); got != 0 {
		t.Errorf("findExpenseRow() on header only = %d, want 0", got)
	}

	e.Amount = 99.99
	if got := findExpenseRow(rows, e); got != 0 {
		t.Errorf("findExpenseRow() with wrong amount = %d, want 0", got)
	}
}

func TestRow_EmptyReceiptLink(t *testing.T) {
	row := Row(testExpense(), "", time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC))
	require.Equal(t, "", row[8])
	require.Equal(t, "2025-03-14T18:00:00Z", row[9])
}

func TestParseUpdatedRange(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"Sheet1!A7:J7", 7, false},
		{"Sheet1!A214:J214", 214, false},
		{"Expenses 2025!A3:J3", 3, false},
		{"Sheet1!A:J", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := parseUpdatedRange(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseUpdatedRange(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseUpdatedRange(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseUpdatedRange(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
