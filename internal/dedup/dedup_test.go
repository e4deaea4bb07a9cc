package dedup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"nexledger-reconciler/internal/models"
)

type fakeLookup struct {
	stored []models.RawTransaction
	err    error
	calls  int
}

func (f *fakeLookup) TransactionExists(_ context.Context, date time.Time, description string, amount *decimal.Decimal) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	for _, s := range f.stored {
		if !s.Date.Equal(date) || !strings.EqualFold(s.Description, description) {
			continue
		}
		if amount != nil && !s.Amount.Equal(*amount) {
			continue
		}
		return true, nil
	}
	return false, nil
}

func raw(d int, desc, amount string) models.RawTransaction {
	return models.RawTransaction{
		Date:         time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC),
		Description:  desc,
		Amount:       decimal.RequireFromString(amount),
		SourceFormat: models.FormatCSV,
	}
}

func TestParseKeyMode(t *testing.T) {
	tests := []struct {
		in      string
		want    KeyMode
		wantErr bool
	}{
		{"", KeyDateDescription, false},
		{"date_description", KeyDateDescription, false},
		{"DATE_DESCRIPTION_AMOUNT", KeyDateDescriptionAmount, false},
		{"fitid", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKeyMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseKeyMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFilter(t *testing.T) {
	stored := &fakeLookup{stored: []models.RawTransaction{raw(1, "Coffee", "-25.00")}}

	tests := []struct {
		name     string
		mode     KeyMode
		batch    []models.RawTransaction
		accepted []string
		dupes    int
	}{
		{
			name:     "stored row is dropped case-insensitively",
			mode:     KeyDateDescription,
			batch:    []models.RawTransaction{raw(1, "COFFEE", "-30.00"), raw(2, "Coffee", "-25.00")},
			accepted: []string{"Coffee"},
			dupes:    1,
		},
		{
			name:     "widened key keeps a different amount",
			mode:     KeyDateDescriptionAmount,
			batch:    []models.RawTransaction{raw(1, "COFFEE", "-30.00"), raw(1, "coffee", "-25.00")},
			accepted: []string{"COFFEE"},
			dupes:    1,
		},
		{
			name:     "in-batch repeats keep the first row",
			mode:     KeyDateDescription,
			batch:    []models.RawTransaction{raw(5, "Rent", "-100"), raw(6, "Fee", "-1"), raw(5, "rent ", "-100")},
			accepted: []string{"Rent", "Fee"},
			dupes:    1,
		},
		{
			name:  "empty batch",
			mode:  KeyDateDescription,
			batch: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, dupes, err := New(stored, tt.mode).Filter(context.Background(), tt.batch)
			if err != nil {
				t.Fatalf("Filter() error: %v", err)
			}
			if len(dupes) != tt.dupes {
				t.Errorf("duplicates = %d, want %d", len(dupes), tt.dupes)
			}
			if len(accepted) != len(tt.accepted) {
				t.Fatalf("accepted = %d rows, want %d", len(accepted), len(tt.accepted))
			}
			for i, want := range tt.accepted {
				if accepted[i].Description != want {
					t.Errorf("accepted[%d] = %q, want %q", i, accepted[i].Description, want)
				}
			}
		})
	}
}

func TestFilterLookupError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("database is locked")}
	if _, _, err := New(lookup, "").Filter(context.Background(), []models.RawTransaction{raw(1, "a", "1")}); err == nil {
		t.Error("Filter() expected lookup error")
	}
}

func TestFilterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := New(nil, "").Filter(ctx, []models.RawTransaction{raw(1, "a", "1")}); !errors.Is(err, context.Canceled) {
		t.Errorf("Filter() error = %v, want context.Canceled", err)
	}
}

func TestFilterWithoutLookup(t *testing.T) {
	f := New(nil, KeyDateDescription)
	dup, err := f.IsDuplicate(context.Background(), raw(1, "a", "1"))
	if err != nil || dup {
		t.Errorf("IsDuplicate() = %v, %v; want false, nil", dup, err)
	}
	if f.Mode() != KeyDateDescription {
		t.Errorf("Mode() = %s", f.Mode())
	}
}
