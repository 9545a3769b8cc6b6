// Package station は充電ステーション検索機能を提供する。
// OpenChargeMap POI APIの呼び出しと正規化を含む。
package station

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/takumi/voltmap/internal/model"
)

const (
	// defaultEndpoint はOpenChargeMap POI APIのエンドポイント。
	defaultEndpoint = "https://api.openchargemap.io/v3/poi/"
	// defaultMaxResults は1リクエストあたりの最大取得件数。
	defaultMaxResults = 100
	// defaultRadius は検索半径のデフォルト値。
	defaultRadius = 20.0
)

// Client はOpenChargeMap APIのクライアント。
// 座標と検索半径から付近の充電ステーションを取得し、正規化して返す。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	apiKey     string
	maxResults int
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewClient はClientの新しいインスタンスを生成する。
// apiKeyが空の場合でも生成は成功し、検索時にエラーを返す
// （この機能のみ無効化され、アプリ全体は利用可能のまま）。
func NewClient(httpClient *http.Client, logger *slog.Logger, apiKey string, maxResults int) *Client {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		apiKey:     apiKey,
		maxResults: maxResults,
		endpoint:   defaultEndpoint,
	}
}

// Enabled はAPIキーが設定されているかを返す。
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// ocmAddressInfo はOCMレスポンスの住所情報。
type ocmAddressInfo struct {
	Title           string   `json:"Title"`
	AddressLine1    string   `json:"AddressLine1"`
	Town            string   `json:"Town"`
	StateOrProvince string   `json:"StateOrProvince"`
	Latitude        *float64 `json:"Latitude"`
	Longitude       *float64 `json:"Longitude"`
}

// ocmTitled はTitleフィールドのみ使用する参照型の共通表現。
type ocmTitled struct {
	Title string `json:"Title"`
}

// ocmConnectionType はコネクタ種別の参照情報。
type ocmConnectionType struct {
	Title      string `json:"Title"`
	FormalName string `json:"FormalName"`
}

// ocmStatusType は稼働ステータスの参照情報。
type ocmStatusType struct {
	Title         string `json:"Title"`
	IsOperational *bool  `json:"IsOperational"`
}

// ocmConnection はOCMレスポンスの1コネクタ。
type ocmConnection struct {
	ConnectionType *ocmConnectionType `json:"ConnectionType"`
	StatusType     *ocmTitled         `json:"StatusType"`
	Level          *ocmTitled         `json:"Level"`
	PowerKW        *float64           `json:"PowerKW"`
	CurrentType    *ocmTitled         `json:"CurrentType"`
	Quantity       int                `json:"Quantity"`
}

// ocmPOI はOCMレスポンスの1ステーション。
type ocmPOI struct {
	ID               json.Number     `json:"ID"`
	AddressInfo      *ocmAddressInfo `json:"AddressInfo"`
	Connections      []ocmConnection `json:"Connections"`
	StatusType       *ocmStatusType  `json:"StatusType"`
	OperatorInfo     *ocmTitled      `json:"OperatorInfo"`
	UsageCost        string          `json:"UsageCost"`
	DateLastVerified string          `json:"DateLastVerified"`
}

// SearchNearby は指定座標の付近の充電ステーションを検索する。
// radiusが0以下の場合はデフォルト半径を使用する。
// APIキー未設定の場合はSTATION_KEY_MISSINGエラーを返す。
func (c *Client) SearchNearby(ctx context.Context, latitude, longitude, radius float64, unit model.DistanceUnit) ([]model.ChargingStation, error) {
	if !c.Enabled() {
		return nil, model.NewStationKeyMissingError()
	}

	if latitude < -90 || latitude > 90 {
		return nil, model.NewInvalidCoordinatesError(fmt.Sprintf("latitude %g is out of range", latitude))
	}
	if longitude < -180 || longitude > 180 {
		return nil, model.NewInvalidCoordinatesError(fmt.Sprintf("longitude %g is out of range", longitude))
	}
	if radius <= 0 {
		radius = defaultRadius
	}
	if unit != model.DistanceKM && unit != model.DistanceMiles {
		unit = model.DistanceKM
	}

	// リクエストURL構築
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("key", c.apiKey)
	q.Set("output", "json")
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', -1, 64))
	q.Set("distance", strconv.FormatFloat(radius, 'f', -1, 64))
	q.Set("distanceunit", string(unit))
	q.Set("maxresults", strconv.Itoa(c.maxResults))
	q.Set("verbose", "false")
	q.Set("includecomments", "false")
	q.Set("compact", "false")
	reqURL.RawQuery = q.Encode()

	// HTTPリクエスト作成
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Voltmap/1.0 EV Companion")

	// HTTPリクエスト実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("OpenChargeMap APIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewStationFetchFailedError(err.Error())
	}
	defer resp.Body.Close()

	// HTTPステータスチェック
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("OpenChargeMap APIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, model.NewStationFetchFailedError(fmt.Sprintf("status %d", resp.StatusCode))
	}

	// レスポンスボディ読み取り
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewStationFetchFailedError("failed to read response body")
	}

	// JSONデコード。配列以外のペイロードはトランスポートエラーとして扱う
	var pois []ocmPOI
	if err := json.Unmarshal(body, &pois); err != nil {
		c.logger.Error("OpenChargeMap APIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, model.NewStationFetchFailedError("invalid response format")
	}

	stations := make([]model.ChargingStation, 0, len(pois))
	for _, poi := range pois {
		stations = append(stations, normalizePOI(poi, latitude, longitude))
	}

	c.logger.Info("充電ステーションを取得しました",
		slog.Int("count", len(stations)),
		slog.Float64("latitude", latitude),
		slog.Float64("longitude", longitude),
	)

	return stations, nil
}

// normalizePOI はOCMのPOIをChargingStationに正規化する。
// 緯度・経度が欠落している場合は検索座標で補完する。
func normalizePOI(poi ocmPOI, searchLat, searchLng float64) model.ChargingStation {
	details := make([]model.ConnectorDetail, 0, len(poi.Connections))
	for _, conn := range poi.Connections {
		details = append(details, normalizeConnection(conn))
	}

	// コネクタ種別の重複を除去（出現順を維持）
	seen := make(map[string]struct{}, len(details))
	types := make([]string, 0, len(details))
	for _, d := range details {
		if _, ok := seen[d.Type]; !ok {
			seen[d.Type] = struct{}{}
			types = append(types, d.Type)
		}
	}

	// 総コネクタ数と最大出力
	total := 0
	var maxPower *float64
	for _, d := range details {
		total += d.Quantity
		if d.PowerKW != nil && (maxPower == nil || *d.PowerKW > *maxPower) {
			p := *d.PowerKW
			maxPower = &p
		}
	}

	station := model.ChargingStation{
		ID:                 poi.ID.String(),
		Name:               "Unknown Location",
		Latitude:           searchLat,
		Longitude:          searchLng,
		Address:            "Address unavailable",
		ConnectorTypes:     types,
		ConnectorDetails:   details,
		Available:          true,
		Operator:           "Unknown",
		PowerKW:            maxPower,
		PriceDescription:   "Contact operator for pricing",
		LastVerified:       poi.DateLastVerified,
		NumberOfConnectors: total,
	}

	if addr := poi.AddressInfo; addr != nil {
		if addr.Title != "" {
			station.Name = addr.Title
		}
		if addr.Latitude != nil {
			station.Latitude = *addr.Latitude
		}
		if addr.Longitude != nil {
			station.Longitude = *addr.Longitude
		}
		station.Address = joinAddress(addr)
	}

	if poi.StatusType != nil && poi.StatusType.IsOperational != nil {
		station.Available = *poi.StatusType.IsOperational
	}

	if poi.OperatorInfo != nil && poi.OperatorInfo.Title != "" {
		station.Operator = poi.OperatorInfo.Title
	}

	if poi.UsageCost != "" {
		station.PriceDescription = poi.UsageCost
	}

	return station
}

// normalizeConnection は1コネクタを正規化する。
// タイトルの欠落は"Unknown"、数量の欠落は1として扱う。
func normalizeConnection(conn ocmConnection) model.ConnectorDetail {
	detail := model.ConnectorDetail{
		Type:        "Unknown",
		Status:      "Unknown",
		Level:       "Unknown",
		CurrentType: "Unknown",
		Quantity:    1,
	}

	if ct := conn.ConnectionType; ct != nil {
		if ct.Title != "" {
			detail.Type = ct.Title
		} else if ct.FormalName != "" {
			detail.Type = ct.FormalName
		}
	}
	if conn.StatusType != nil && conn.StatusType.Title != "" {
		detail.Status = conn.StatusType.Title
	}
	if conn.Level != nil && conn.Level.Title != "" {
		detail.Level = conn.Level.Title
	}
	if conn.CurrentType != nil && conn.CurrentType.Title != "" {
		detail.CurrentType = conn.CurrentType.Title
	}
	if conn.PowerKW != nil {
		p := *conn.PowerKW
		detail.PowerKW = &p
	}
	if conn.Quantity > 0 {
		detail.Quantity = conn.Quantity
	}

	return detail
}

// joinAddress は住所の非空パーツをカンマ区切りで連結する。
func joinAddress(addr *ocmAddressInfo) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{addr.AddressLine1, addr.Town, addr.StateOrProvince} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "Address unavailable"
	}

	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
