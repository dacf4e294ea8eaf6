package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/carbitrage/internal/domain"
	"github.com/alanyoungcy/carbitrage/internal/fingerprint"
)

type memSales struct {
	byAccount map[string][]domain.Sale
	err       error
}

func (m memSales) ListAccounts(context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, 0, len(m.byAccount))
	for a := range m.byAccount {
		out = append(out, a)
	}
	return out, nil
}

func (m memSales) ListByAccount(_ context.Context, acct string) ([]domain.Sale, error) {
	return m.byAccount[acct], m.err
}

func sale(vehicleMake, model string, buy, sell float64) domain.Sale {
	return domain.Sale{
		Make: vehicleMake, Model: model, Variant: "SR5",
		Year: iptr(2018), Km: iptr(50000),
		BuyPrice: fptr(buy), SalePrice: fptr(sell),
		DaysToClear: iptr(12),
		SoldAt:      time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestFingerprintRefresh(t *testing.T) {
	sales := memSales{byAccount: map[string][]domain.Sale{
		"acct": {
			sale("Toyota", "Hilux", 20000, 26000),
			sale("Toyota", "Hilux", 21000, 25000),
			sale("Ford", "Ranger", 30000, 28000),
		},
		"empty": nil,
	}}
	prints := &memPrints{}
	cache := newMemBestSales()
	_ = cache.Set(context.Background(), "acct", domain.BestSale{Make: "TOYOTA", Model: "HILUX"})

	svc := NewFingerprintService(sales, prints, cache, fingerprint.Options{Limit: 20}, discardLogger())
	counts, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts["acct"] != 1 || counts["empty"] != 0 {
		t.Fatalf("counts = %v", counts)
	}
	fps := prints.byAccount["acct"]
	if fps[0].Make != "TOYOTA" || fps[0].TimesSold != 2 || fps[0].TotalProfit != 10000 || fps[0].Rank != 1 {
		t.Fatalf("fingerprint = %+v", fps[0])
	}
	if len(cache.entries) != 0 {
		t.Fatal("best sale cache not invalidated")
	}
}

func TestFingerprintRefreshStoreError(t *testing.T) {
	svc := NewFingerprintService(memSales{err: errors.New("db down")}, &memPrints{}, nil, fingerprint.Options{}, discardLogger())
	if _, err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
