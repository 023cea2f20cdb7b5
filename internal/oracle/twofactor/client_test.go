package twofactor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/mobileauth-chat/internal/services"
)

func newServer(t *testing.T, h http.HandlerFunc) (*Client, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(srv.URL+"/API/V1", "KEY", time.Second, srv.Client()), &paths
}

func TestSend_Success(t *testing.T) {
	c, paths := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Status":"Success","Details":"sess-123"}`))
	})
	sid, err := c.Send(context.Background(), "9876543210")
	if err != nil || sid != "sess-123" {
		t.Fatalf("sid=%q err=%v", sid, err)
	}
	if got := (*paths)[0]; got != "/API/V1/KEY/SMS/9876543210/AUTOGEN3" {
		t.Fatalf("path = %s", got)
	}
}

func TestSend_RejectedCarriesDetails(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Status":"Error","Details":"Invalid Phone Number - Length Mismatch(Expected: 10)"}`))
	})
	_, err := c.Send(context.Background(), "123")
	if !errors.Is(err, services.ErrUpstreamRejected) {
		t.Fatalf("err = %v", err)
	}
	if !strings.HasPrefix(services.Detail(err), "Invalid Phone Number") {
		t.Fatalf("detail = %q", services.Detail(err))
	}
}

func TestSend_RejectedWithoutDetails(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Status":"Error"}`))
	})
	_, err := c.Send(context.Background(), "9876543210")
	if services.Detail(err) != "Failed to send OTP" {
		t.Fatalf("detail = %q", services.Detail(err))
	}
}

func TestSend_InvalidBodyIsUnavailable(t *testing.T) {
	c, _ := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	})
	_, err := c.Send(context.Background(), "9876543210")
	if !errors.Is(err, services.ErrUnavailable) || services.Detail(err) != "" {
		t.Fatalf("err = %v", err)
	}
}

func TestVerify(t *testing.T) {
	c, paths := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/123456") {
			_, _ = w.Write([]byte(`{"Status":"Success","Details":"OTP Matched"}`))
			return
		}
		_, _ = w.Write([]byte(`{"Status":"Error","Details":"OTP Mismatch"}`))
	})

	if err := c.Verify(context.Background(), "sess-1", "123456"); err != nil {
		t.Fatal(err)
	}
	if got := (*paths)[0]; got != "/API/V1/KEY/SMS/VERIFY/sess-1/123456" {
		t.Fatalf("path = %s", got)
	}

	err := c.Verify(context.Background(), "sess-1", "000000")
	if !errors.Is(err, services.ErrOtpInvalid) || services.Detail(err) != "OTP Mismatch" {
		t.Fatalf("err = %v", err)
	}
}

func TestTransportErrorHidesKey(t *testing.T) {
	c := New("http://127.0.0.1:1/API/V1", "SECRETKEY", 200*time.Millisecond, nil)
	_, err := c.Send(context.Background(), "9876543210")
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("err = %v", err)
	}
	if strings.Contains(err.Error(), "SECRETKEY") {
		t.Fatalf("api key leaked: %v", err)
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New("", "k", time.Second, nil)
	if c.baseURL != DefaultBaseURL || c.http.Timeout != time.Second {
		t.Fatalf("defaults = %+v", c)
	}
}
