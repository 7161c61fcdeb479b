package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/trickstertwo/xtrack"
)

// fileConfig is the layout of the --config file:
//
//	endpoint: collector.example.com
//	async: true
//	emitter:
//	  method: post
//	  buffer_size: 5
//	tracker:
//	  namespace: cli
//	  app_id: my-app
//
// The emitter section is passed to xtrack.ConfigFromMap, so unknown keys fail.
type fileConfig struct {
	Endpoint string         `yaml:"endpoint"`
	Async    bool           `yaml:"async"`
	Emitter  map[string]any `yaml:"emitter"`
	Tracker  struct {
		Namespace    string `yaml:"namespace"`
		AppID        string `yaml:"app_id"`
		EncodeBase64 *bool  `yaml:"encode_base64"`
		Platform     string `yaml:"platform"`
		UserID       string `yaml:"user_id"`
	} `yaml:"tracker"`
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &fc, nil
}

// emitterConfig converts the emitter section to xtrack.Config.
func (fc *fileConfig) emitterConfig() (xtrack.Config, error) {
	if fc.Emitter == nil {
		return xtrack.Defaults(), nil
	}
	return xtrack.ConfigFromMap(fc.Emitter)
}

// transactionFile is the layout of a transaction --file.
type transactionFile struct {
	OrderID     string   `yaml:"order_id"`
	TotalValue  float64  `yaml:"total_value"`
	Affiliation string   `yaml:"affiliation"`
	TaxValue    *float64 `yaml:"tax_value"`
	Shipping    *float64 `yaml:"shipping"`
	City        string   `yaml:"city"`
	State       string   `yaml:"state"`
	Country     string   `yaml:"country"`
	Currency    string   `yaml:"currency"`
	Items       []struct {
		SKU      string  `yaml:"sku"`
		Price    float64 `yaml:"price"`
		Quantity int     `yaml:"quantity"`
		Name     string  `yaml:"name"`
		Category string  `yaml:"category"`
	} `yaml:"items"`
}

func loadTransaction(path string) (xtrack.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return xtrack.Transaction{}, fmt.Errorf("failed to read transaction: %w", err)
	}
	var tf transactionFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return xtrack.Transaction{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	tx := xtrack.Transaction{
		OrderID:     tf.OrderID,
		TotalValue:  tf.TotalValue,
		Affiliation: tf.Affiliation,
		TaxValue:    tf.TaxValue,
		Shipping:    tf.Shipping,
		City:        tf.City,
		State:       tf.State,
		Country:     tf.Country,
		Currency:    tf.Currency,
	}
	for _, it := range tf.Items {
		tx.Items = append(tx.Items, xtrack.TransactionItem{
			SKU:      it.SKU,
			Price:    it.Price,
			Quantity: it.Quantity,
			Name:     it.Name,
			Category: it.Category,
		})
	}
	return tx, nil
}
