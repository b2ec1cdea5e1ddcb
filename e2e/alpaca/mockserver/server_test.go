package mockserver

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rxtech-lab/argo-alpaca/internal/types"
	"github.com/stretchr/testify/suite"
)

type MockServerTestSuite struct {
	suite.Suite
	server *MockAlpacaServer
}

func TestMockServerSuite(t *testing.T) {
	suite.Run(t, new(MockServerTestSuite))
}

func (suite *MockServerTestSuite) SetupTest() {
	suite.server = NewMockAlpacaServer(ServerConfig{
		APIKey:      "key",
		APISecret:   "secret",
		BuyingPower: 10000,
		Quotes:      map[string][2]float64{"AAPL": {189.9, 190.1}},
	})
	suite.Require().NoError(suite.server.Start(":0"))
}

func (suite *MockServerTestSuite) TearDownTest() {
	if suite.server != nil {
		_ = suite.server.Stop()
	}
}

func (suite *MockServerTestSuite) do(method, path, body string, authed bool) (int, []byte) {
	req, err := http.NewRequest(method, suite.server.BaseURL()+path, strings.NewReader(body))
	suite.Require().NoError(err)

	if authed {
		req.Header.Set("APCA-API-KEY-ID", "key")
		req.Header.Set("APCA-API-SECRET-KEY", "secret")
	}

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)

	return resp.StatusCode, data
}

func (suite *MockServerTestSuite) dial(url string) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	suite.Require().NoError(err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return conn
}

func (suite *MockServerTestSuite) read(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	suite.Require().NoError(err)

	return string(data)
}

func (suite *MockServerTestSuite) TestServerStartAndStop() {
	suite.NotEmpty(suite.server.Address())
	suite.Contains(suite.server.BaseURL(), "http://")
	suite.Contains(suite.server.MarketDataURL(), "ws://")
	suite.Contains(suite.server.TradingStreamURL(), "/stream")
}

func (suite *MockServerTestSuite) TestRESTRequiresCredentials() {
	status, _ := suite.do(http.MethodGet, "/v2/account", "", false)
	suite.Equal(http.StatusUnauthorized, status)
}

func (suite *MockServerTestSuite) TestAccount() {
	suite.server.SetBuyingPower(500)

	status, body := suite.do(http.MethodGet, "/v2/account", "", true)
	suite.Equal(http.StatusOK, status)
	suite.Contains(string(body), `"buying_power":"500.00"`)
}

func (suite *MockServerTestSuite) TestLatestQuote() {
	status, body := suite.do(http.MethodGet, "/v2/stocks/AAPL/quotes/latest", "", true)
	suite.Equal(http.StatusOK, status)
	suite.Contains(string(body), `"ap":190.1`)

	status, _ = suite.do(http.MethodGet, "/v2/stocks/MSFT/quotes/latest", "", true)
	suite.Equal(http.StatusNotFound, status)
}

func (suite *MockServerTestSuite) TestOrderLifecycle() {
	body := `{"symbol":"AAPL","qty":"1","side":"buy","type":"market","time_in_force":"day","client_order_id":"abc"}`

	status, data := suite.do(http.MethodPost, "/v2/orders", body, true)
	suite.Require().Equal(http.StatusOK, status)

	var order types.BrokerOrder
	suite.Require().NoError(json.Unmarshal(data, &order))
	suite.Equal("abc", order.ClientOrderID)
	suite.Equal(types.BrokerOrderStatusAccepted, order.Status)

	status, _ = suite.do(http.MethodGet, "/v2/orders/"+order.ID, "", true)
	suite.Equal(http.StatusOK, status)

	status, data = suite.do(http.MethodPost, "/v2/orders", body, true)
	suite.Equal(http.StatusUnprocessableEntity, status)
	suite.Contains(string(data), "client_order_id must be unique")

	status, _ = suite.do(http.MethodDelete, "/v2/orders/"+order.ID, "", true)
	suite.Equal(http.StatusNoContent, status)

	suite.Eventually(func() bool {
		o, ok := suite.server.GetOrder(order.ID)

		return ok && o.Status == types.BrokerOrderStatusCanceled
	}, time.Second, 10*time.Millisecond)

	status, _ = suite.do(http.MethodDelete, "/v2/orders/missing", "", true)
	suite.Equal(http.StatusNotFound, status)
	suite.Equal(2, suite.server.SubmitCount())
	suite.Equal(2, suite.server.CancelCount())
}

func (suite *MockServerTestSuite) TestFailNextSubmissions() {
	suite.server.FailNextSubmissions(1)
	body := `{"symbol":"AAPL","qty":"1","side":"buy","type":"market","time_in_force":"day"}`

	status, _ := suite.do(http.MethodPost, "/v2/orders", body, true)
	suite.Equal(http.StatusInternalServerError, status)

	status, _ = suite.do(http.MethodPost, "/v2/orders", body, true)
	suite.Equal(http.StatusOK, status)
	suite.Len(suite.server.Orders(), 1)
}

func (suite *MockServerTestSuite) TestMarketStreamHandshake() {
	conn := suite.dial(suite.server.MarketDataURL())
	defer conn.Close()

	suite.Contains(suite.read(conn), `"connected"`)

	suite.Require().NoError(conn.WriteJSON(map[string]any{"action": "auth", "key": "key", "secret": "secret"}))
	suite.Contains(suite.read(conn), `"authenticated"`)

	suite.Require().NoError(conn.WriteJSON(map[string]any{"action": "subscribe", "quotes": []string{"AAPL"}}))
	suite.Contains(suite.read(conn), `"subscription"`)
	suite.Equal([]string{"AAPL"}, suite.server.Subscriptions("quotes"))

	suite.server.PushQuote("AAPL", 1, 2)
	suite.Contains(suite.read(conn), `"T":"q"`)
	suite.Equal(1, suite.server.AuthAttempts(types.StreamMarketData))
}

func (suite *MockServerTestSuite) TestMarketStreamAuthFailure() {
	conn := suite.dial(suite.server.MarketDataURL())
	defer conn.Close()

	suite.read(conn)
	suite.Require().NoError(conn.WriteJSON(map[string]any{"action": "auth", "key": "bad", "secret": "bad"}))
	suite.Contains(suite.read(conn), `"code":402`)

	suite.server.SetMarketAuthError(406)
	suite.Require().NoError(conn.WriteJSON(map[string]any{"action": "auth", "key": "key", "secret": "secret"}))
	suite.Contains(suite.read(conn), `"code":406`)
}

func (suite *MockServerTestSuite) TestTradingStreamReceivesFills() {
	conn := suite.dial(suite.server.TradingStreamURL())
	defer conn.Close()

	suite.Require().NoError(conn.WriteJSON(map[string]any{
		"action": "authenticate",
		"data":   map[string]any{"key_id": "key", "secret_key": "secret"},
	}))
	suite.Contains(suite.read(conn), `"authorized"`)

	suite.Require().NoError(conn.WriteJSON(map[string]any{
		"action": "listen",
		"data":   map[string]any{"streams": []string{"trade_updates"}},
	}))
	suite.Contains(suite.read(conn), `"listening"`)
	suite.Equal(1, suite.server.ListeningTradingConnections())

	status, data := suite.do(http.MethodPost, "/v2/orders",
		`{"symbol":"AAPL","qty":"1","side":"buy","type":"market","time_in_force":"day"}`, true)
	suite.Require().Equal(http.StatusOK, status)

	var order types.BrokerOrder
	suite.Require().NoError(json.Unmarshal(data, &order))
	suite.Require().NoError(suite.server.FillOrder(order.ID, 190))

	frame := suite.read(conn)
	suite.Contains(frame, `"trade_updates"`)
	suite.Contains(frame, `"event":"fill"`)
	suite.Contains(frame, order.ID)

	suite.Error(suite.server.FillOrder("missing", 1))
}

func (suite *MockServerTestSuite) TestTradingStreamRejectsBadCredentials() {
	conn := suite.dial(suite.server.TradingStreamURL())
	defer conn.Close()

	suite.Require().NoError(conn.WriteJSON(map[string]any{
		"action": "authenticate",
		"data":   map[string]any{"key_id": "bad", "secret_key": "bad"},
	}))
	suite.Contains(suite.read(conn), `"unauthorized"`)
}

func (suite *MockServerTestSuite) TestDropConnections() {
	conn := suite.dial(suite.server.MarketDataURL())
	defer conn.Close()

	suite.read(conn)
	suite.Eventually(func() bool { return suite.server.MarketConnections() == 1 }, time.Second, 10*time.Millisecond)

	suite.server.DropConnections()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	suite.Error(err)
}
