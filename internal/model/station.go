// Package model はドメインモデルを定義する。
package model

// ConnectorDetail は充電ステーションの1コネクタ種別の詳細を表す。
type ConnectorDetail struct {
	Type        string   `json:"type"`
	Status      string   `json:"status"`
	Level       string   `json:"level"`
	PowerKW     *float64 `json:"power_kw"`
	CurrentType string   `json:"current_type"`
	Quantity    int      `json:"quantity"`
}

// ChargingStation はOpenChargeMapのPOIを正規化した充電ステーションレコード。
// PowerKWは全コネクタの最大出力（全コネクタで未提供ならnil）。
// NumberOfConnectorsは各コネクタのQuantityの合計。
type ChargingStation struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Latitude           float64           `json:"latitude"`
	Longitude          float64           `json:"longitude"`
	Address            string            `json:"address"`
	ConnectorTypes     []string          `json:"connector_types"`
	ConnectorDetails   []ConnectorDetail `json:"connector_details"`
	Available          bool              `json:"available"`
	Operator           string            `json:"operator"`
	PowerKW            *float64          `json:"power_kw"`
	PriceDescription   string            `json:"price_description"`
	LastVerified       string            `json:"last_verified"`
	NumberOfConnectors int               `json:"number_of_connectors"`
}

// DistanceUnit は検索半径の単位を表す。
type DistanceUnit string

const (
	// DistanceKM はキロメートル単位。
	DistanceKM DistanceUnit = "km"
	// DistanceMiles はマイル単位。
	DistanceMiles DistanceUnit = "miles"
)
