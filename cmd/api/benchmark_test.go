package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Mekazstan/ticket-checkout-api/internal/auth"
	"github.com/Mekazstan/ticket-checkout-api/internal/catalog"
	"github.com/Mekazstan/ticket-checkout-api/internal/payment"
	"github.com/shopspring/decimal"
)

func BenchmarkGenerateReference(b *testing.B) {
	gen := payment.NewReferenceGenerator()
	for i := 0; i < b.N; i++ {
		gen.Generate(payment.MethodPaystack)
	}
}

func BenchmarkCatalogQuote(b *testing.B) {
	c := catalog.Default()
	items := []catalog.LineItem{
		{TicketType: "regular", Quantity: 2},
		{TicketType: "vip", Quantity: 1},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Quote(items)
	}
}

func BenchmarkMakeHandoffToken(b *testing.B) {
	amount := decimal.NewFromInt(53750)
	for i := 0; i < b.N; i++ {
		auth.MakeHandoffToken("ETG-1741946400000-ABC1234", amount, "ada@example.com", "test-secret", time.Hour)
	}
}

func BenchmarkValidateHandoffToken(b *testing.B) {
	token, _ := auth.MakeHandoffToken("ETG-1741946400000-ABC1234", decimal.NewFromInt(53750), "ada@example.com", "test-secret", time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		auth.ValidateHandoffToken(token, "test-secret")
	}
}

func BenchmarkCheckAPIKey(b *testing.B) {
	key := "ops_admin_key_0123456789"
	hash, _ := auth.HashAPIKey(key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		auth.CheckAPIKey(key, hash)
	}
}

func BenchmarkCreateSessionHandler(b *testing.B) {
	api := newTestAPI(b, testOptions{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := httptest.NewRequest(http.MethodPost, "/sessions", nil)
		rr := httptest.NewRecorder()
		api.handler.ServeHTTP(rr, req)
	}
}
