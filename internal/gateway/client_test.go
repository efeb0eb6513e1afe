package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/shop-core/internal/domain/payment"
)

func TestClient_CreateOrder(t *testing.T) {
	var got struct {
		amount   int64
		currency string
		receipt  string
		notes    map[string]string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		got.notes = map[string]string{}
		err = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "amount":
				got.amount, err = d.Int64()
			case "currency":
				got.currency, err = d.Str()
			case "receipt":
				got.receipt, err = d.Str()
			case "notes":
				err = d.ObjBytes(func(d *jx.Decoder, key []byte) error {
					v, err := d.Str()
					got.notes[string(key)] = v
					return err
				})
			default:
				err = d.Skip()
			}
			return err
		})
		assert.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_Gw1","entity":"order","amount":11500,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/", KeyID: "key_id", KeySecret: "key_secret"}, nil)
	require.NoError(t, err)

	o, err := c.CreateOrder(context.Background(), payment.GatewayOrderRequest{
		Amount:   decimal.RequireFromString("115.00"),
		Currency: "inr",
		Receipt:  "ORD-1",
		Notes:    map[string]string{"order_id": "o1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_Gw1", o.ID)
	assert.EqualValues(t, 11500, o.AmountMinor)
	assert.Equal(t, "INR", o.Currency)
	assert.Equal(t, "key_id", o.KeyID)

	assert.EqualValues(t, 11500, got.amount)
	assert.Equal(t, "INR", got.currency)
	assert.Equal(t, "ORD-1", got.receipt)
	assert.Equal(t, "o1", got.notes["order_id"])
}

func TestClient_CreateOrderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount too small"}}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, KeyID: "k", KeySecret: "s"}, nil)
	require.NoError(t, err)

	_, err = c.CreateOrder(context.Background(), payment.GatewayOrderRequest{Amount: decimal.NewFromInt(1), Currency: "INR"})
	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusBadRequest, gwErr.StatusCode)
	assert.Equal(t, "BAD_REQUEST_ERROR", gwErr.Code)
	assert.Contains(t, gwErr.Error(), "amount too small")
}

func TestClient_MissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"amount":100}`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, KeyID: "k", KeySecret: "s"}, nil)
	require.NoError(t, err)
	_, err = c.CreateOrder(context.Background(), payment.GatewayOrderRequest{Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{KeyID: "k", KeySecret: "s"}, nil)
	require.Error(t, err)
	_, err = New(Config{BaseURL: "http://gw"}, nil)
	require.Error(t, err)
}
