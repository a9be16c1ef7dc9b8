package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

const dayMs = int64(24 * time.Hour / time.Millisecond)

func kline(day int64, close string) RawKline {
	open := day * dayMs
	return RawKline{
		itoa64(open), "100", "101", "99", close, "10",
		itoa64(open + dayMs - 1), "1000", "50", "5", "500", "0",
	}
}

func itoa64(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestRawKline_UnmarshalMixedArray(t *testing.T) {
	data := []byte(`[1700006400000,"37000.1","37500","36800.5","37250.25","1234.5",1700092799999,"45678901.2",98765,"600.25","22222222.2","0"]`)
	var k RawKline
	if err := json.Unmarshal(data, &k); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(k) != KlineFields {
		t.Fatalf("expected %d fields, got %d", KlineFields, len(k))
	}
	if k[FieldOpenTime] != "1700006400000" || k[FieldClose] != "37250.25" || k[FieldTrades] != "98765" {
		t.Errorf("unexpected fields: %v", k)
	}

	b, err := ParseKline(k)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if b.OpenTime.UnixMilli() != 1700006400000 || b.OpenTime.Location() != time.UTC {
		t.Errorf("openTime = %v", b.OpenTime)
	}
	if b.Close != 37250.25 || b.Trades != 98765 || b.TakerBase != 600.25 {
		t.Errorf("decoded bar = %+v", b)
	}
}

func TestParseKline_Rejects(t *testing.T) {
	cases := []struct {
		name  string
		field int
		value string
	}{
		{"non-numeric close", FieldClose, "abc"},
		{"NaN close", FieldClose, "NaN"},
		{"empty volume", FieldVolume, ""},
		{"zero price", FieldLow, "0"},
		{"negative volume", FieldVolume, "-1"},
		{"fractional trades", FieldTrades, "1.5"},
		{"taker exceeds volume", FieldTakerBase, "11"},
		{"taker quote exceeds quote volume", FieldTakerQuote, "1000.01"},
		{"close before open", FieldCloseTime, "0"},
		{"high beyond float64", FieldHigh, "1e400"},
		{"low underflows to zero", FieldLow, "1e-400"},
		{"volume beyond float64", FieldVolume, "1e400"},
		{"trades beyond int64", FieldTrades, "1e30"},
		{"open time beyond int64", FieldOpenTime, "1e30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := kline(10, "100")
			k[tc.field] = tc.value
			_, err := ParseKline(k)
			if !errors.Is(err, ErrMalformedBar) {
				t.Fatalf("expected ErrMalformedBar, got %v", err)
			}
		})
	}
}

func TestParseKline_MissingFields(t *testing.T) {
	k := kline(1, "100")[:8]
	if _, err := ParseKline(k); !errors.Is(err, ErrMalformedBar) {
		t.Fatalf("expected ErrMalformedBar, got %v", err)
	}
}

func TestParseKline_ExtraFieldTolerated(t *testing.T) {
	k := append(kline(1, "100"), "extra")
	if _, err := ParseKline(k); err != nil {
		t.Fatalf("13-field kline should parse: %v", err)
	}
}

func TestNormalize_OrderAndFatality(t *testing.T) {
	raws := []RawKline{kline(1, "100"), kline(2, "101"), kline(2, "102")}
	if _, err := Normalize(raws); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}

	raws = []RawKline{kline(1, "100"), kline(2, "x")}
	cols, err := Normalize(raws)
	if err == nil {
		t.Fatal("expected error for malformed bar")
	}
	if cols.Len() != 0 {
		t.Fatalf("no partial output expected, got %d rows", cols.Len())
	}
}

func TestNormalize_Columns(t *testing.T) {
	raws := []RawKline{kline(1, "100"), kline(2, "101.5"), kline(3, "99")}
	cols, err := Normalize(raws)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cols.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", cols.Len())
	}
	if v, ok := cols.Close.Get(1); !ok || v != 101.5 {
		t.Errorf("close[1] = %v,%v", v, ok)
	}
	if v, _ := cols.Trades.Get(2); v != 50 {
		t.Errorf("trades[2] = %v", v)
	}
	if got := cols.OpenTime[2].Sub(cols.OpenTime[1]); got != 24*time.Hour {
		t.Errorf("open time spacing = %v", got)
	}
	if cols.Ignore[0] != "0" {
		t.Errorf("ignore[0] = %q", cols.Ignore[0])
	}
}
