package weather

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/yegors/wx-forecast/internal/websocket"
	"github.com/yegors/wx-forecast/pkg/logger"
)

func dialForecastSocket(t *testing.T, svc *Service) *gorilla.Conn {
	t.Helper()
	return dialLimitedForecastSocket(t, svc, nil)
}

func dialLimitedForecastSocket(t *testing.T, svc *Service, limiter RequestLimiter) *gorilla.Conn {
	t.Helper()
	log := logger.NewNop()
	wsServer := websocket.NewServer(websocket.Config{MaxMessageBytes: 4096, MaxInFlight: 4}, log)
	handler := NewWebSocketHandler(svc, log)
	if limiter != nil {
		handler.SetRateLimiter(limiter)
	}
	wsServer.SetMessageHandler(handler)
	go wsServer.Run()
	t.Cleanup(wsServer.Stop)

	srv := httptest.NewServer(http.HandlerFunc(wsServer.HandleConnection))
	t.Cleanup(srv.Close)

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *gorilla.Conn, msg websocket.Message) websocket.Message {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var reply websocket.Message
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read: %v", err)
	}
	return reply
}

func forecastRequest(city string) websocket.Message {
	return websocket.Message{
		Type: websocket.MessageTypeForecastRequest,
		Data: map[string]any{"city": city},
	}
}

func TestWebSocketForecast(t *testing.T) {
	svc := upstreams(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("name") != "London" {
			w.Write([]byte(`{"results":[]}`))
			return
		}
		w.Write([]byte(`{"results":[{"name":"London","latitude":51.5074,"longitude":-0.1278}]}`))
	}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":15.5,"relative_humidity_2m":72,"wind_speed_10m":12.3,"weather_code":2}}`))
	})
	conn := dialForecastSocket(t, svc)

	reply := roundTrip(t, conn, forecastRequest("London"))
	if reply.Type != websocket.MessageTypeForecastResponse {
		t.Fatalf("got %+v", reply)
	}
	want := map[string]any{
		"city":        "London",
		"temperature": 15.5,
		"humidity":    float64(72),
		"wind_speed":  12.3,
		"conditions":  "Partly cloudy",
	}
	for k, v := range want {
		if reply.Data[k] != v {
			t.Errorf("%s = %v, want %v", k, reply.Data[k], v)
		}
	}

	reply = roundTrip(t, conn, forecastRequest("InvalidCity123"))
	if reply.Type != websocket.MessageTypeForecastError {
		t.Fatalf("got %+v", reply)
	}
	if reply.Data["status"] != float64(http.StatusNotFound) || reply.Data["detail"] != "City not found: InvalidCity123" {
		t.Errorf("got %+v", reply.Data)
	}
	if reply.Data["city"] != "InvalidCity123" {
		t.Errorf("city = %v", reply.Data["city"])
	}
}

func TestWebSocketForecastUpstreamFailure(t *testing.T) {
	svc := upstreams(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("weather API should not be called")
	})
	conn := dialForecastSocket(t, svc)

	reply := roundTrip(t, conn, forecastRequest("London"))
	if reply.Type != websocket.MessageTypeForecastError {
		t.Fatalf("got %+v", reply)
	}
	if reply.Data["status"] != float64(http.StatusServiceUnavailable) || reply.Data["detail"] != "Geocoding API error: 502" {
		t.Errorf("got %+v", reply.Data)
	}
}

func TestWebSocketRejectsBadRequests(t *testing.T) {
	svc := upstreams(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("geocoding API should not be called")
	}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("weather API should not be called")
	})
	conn := dialForecastSocket(t, svc)

	reply := roundTrip(t, conn, websocket.Message{Type: "subscribe"})
	if reply.Type != websocket.MessageTypeError || reply.Data["detail"] != "Unsupported message type: subscribe" {
		t.Errorf("got %+v", reply)
	}

	reply = roundTrip(t, conn, websocket.Message{Type: websocket.MessageTypeForecastRequest, Data: map[string]any{}})
	if reply.Type != websocket.MessageTypeForecastError || reply.Data["status"] != float64(http.StatusBadRequest) {
		t.Errorf("got %+v", reply)
	}
	if reply.Data["detail"] != "City name is required" {
		t.Errorf("detail = %v", reply.Data["detail"])
	}
}

// budgetLimiter admits a fixed number of requests per key
type budgetLimiter struct {
	mu   sync.Mutex
	left map[string]int
	keys []string
}

func (l *budgetLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.left[key] <= 0 {
		return false, 1500 * time.Millisecond
	}
	l.left[key]--
	return true, 0
}

func TestWebSocketForecastIsRateLimited(t *testing.T) {
	var lookups int32
	svc := upstreams(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&lookups, 1)
		w.Write([]byte(`{"results":[{"name":"London","latitude":51.5074,"longitude":-0.1278}]}`))
	}, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"current":{"temperature_2m":15.5,"relative_humidity_2m":72,"wind_speed_10m":12.3,"weather_code":2}}`))
	})
	limiter := &budgetLimiter{left: map[string]int{"127.0.0.1": 1}}
	conn := dialLimitedForecastSocket(t, svc, limiter)

	if reply := roundTrip(t, conn, forecastRequest("London")); reply.Type != websocket.MessageTypeForecastResponse {
		t.Fatalf("first request: got %+v", reply)
	}

	for i := 0; i < 10; i++ {
		reply := roundTrip(t, conn, forecastRequest("London"))
		if reply.Type != websocket.MessageTypeForecastError {
			t.Fatalf("request %d: got %+v", i+2, reply)
		}
		if reply.Data["status"] != float64(http.StatusTooManyRequests) || reply.Data["detail"] != "Rate limit exceeded" {
			t.Errorf("request %d: got %+v", i+2, reply.Data)
		}
		if reply.Data["retry_after"] != float64(2) {
			t.Errorf("retry_after = %v", reply.Data["retry_after"])
		}
	}

	if n := atomic.LoadInt32(&lookups); n != 1 {
		t.Errorf("expected 1 upstream lookup, got %d", n)
	}
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	for _, key := range limiter.keys {
		if key != "127.0.0.1" {
			t.Errorf("limiter keyed on %q", key)
		}
	}
}
