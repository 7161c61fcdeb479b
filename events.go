package xtrack

// Event type codes sent as e.
const (
	EventTypePageView        = "pv"
	EventTypeStructured      = "se"
	EventTypeSelfDescribing  = "ue"
	EventTypeTransaction     = "tr"
	EventTypeTransactionItem = "ti"
)

// PageView is a page view event. URL is required.
type PageView struct {
	URL      string
	Title    string
	Referrer string
}

func (v PageView) payload() (*Payload, error) {
	if v.URL == "" {
		return nil, &ValidationError{Event: "page view", Field: "url"}
	}
	p := NewPayload()
	p.Add("e", EventTypePageView)
	p.Add("url", v.URL)
	p.Add("page", v.Title)
	p.Add("refr", v.Referrer)
	return p, nil
}

// ScreenView is sent as a self-describing screen_view event. At least one of
// Name and ID is required.
type ScreenView struct {
	Name string
	ID   string
}

func (v ScreenView) selfDescribing() (SelfDescribing, error) {
	if v.Name == "" && v.ID == "" {
		return SelfDescribing{}, &ValidationError{Event: "screen view", Field: "name or id"}
	}
	data := make(map[string]string, 2)
	if v.Name != "" {
		data["name"] = v.Name
	}
	if v.ID != "" {
		data["id"] = v.ID
	}
	return SelfDescribing{Event: NewSelfDescribingJSON(SchemaScreenView, data)}, nil
}

// StructEvent is a structured event. Category and Action are required.
type StructEvent struct {
	Category string
	Action   string
	Label    string
	Property string
	Value    *float64
}

func (v StructEvent) payload() (*Payload, error) {
	if v.Category == "" {
		return nil, &ValidationError{Event: "structured", Field: "category"}
	}
	if v.Action == "" {
		return nil, &ValidationError{Event: "structured", Field: "action"}
	}
	p := NewPayload()
	p.Add("e", EventTypeStructured)
	p.Add("se_ca", v.Category)
	p.Add("se_ac", v.Action)
	p.Add("se_la", v.Label)
	p.Add("se_pr", v.Property)
	p.Add("se_va", v.Value)
	return p, nil
}

// SelfDescribing is a custom event described by its own schema.
type SelfDescribing struct {
	Event SelfDescribingJSON
}

func (v SelfDescribing) payload(encodeBase64 bool) (*Payload, error) {
	if v.Event.Schema == "" {
		return nil, &ValidationError{Event: "self-describing", Field: "schema"}
	}
	p := NewPayload()
	p.Add("e", EventTypeSelfDescribing)
	envelope := NewSelfDescribingJSON(SchemaUnstructEvent, v.Event)
	if err := p.AddJSON(envelope, encodeBase64, "ue_px", "ue_pr"); err != nil {
		return nil, err
	}
	return p, nil
}

// Transaction is an ecommerce transaction. OrderID is required; each item
// is tracked as its own event.
type Transaction struct {
	OrderID     string
	TotalValue  float64
	Affiliation string
	TaxValue    *float64
	Shipping    *float64
	City        string
	State       string
	Country     string
	Currency    string
	Items       []TransactionItem
}

// TransactionItem is one line of a Transaction. SKU is required.
type TransactionItem struct {
	SKU      string
	Price    float64
	Quantity int
	Name     string
	Category string
}

func (v Transaction) payload() (*Payload, error) {
	if v.OrderID == "" {
		return nil, &ValidationError{Event: "transaction", Field: "order id"}
	}
	for i, it := range v.Items {
		if it.SKU == "" {
			return nil, &ValidationError{Event: "transaction item", Field: fieldIndex("sku", i)}
		}
	}
	p := NewPayload()
	p.Add("e", EventTypeTransaction)
	p.Add("tr_id", v.OrderID)
	p.Add("tr_tt", v.TotalValue)
	p.Add("tr_af", v.Affiliation)
	p.Add("tr_tx", v.TaxValue)
	p.Add("tr_sh", v.Shipping)
	p.Add("tr_ci", v.City)
	p.Add("tr_st", v.State)
	p.Add("tr_co", v.Country)
	p.Add("tr_cu", v.Currency)
	return p, nil
}

// itemPayload builds the ti event for item, inheriting the order id and
// currency of the transaction.
func (v Transaction) itemPayload(item TransactionItem) *Payload {
	p := NewPayload()
	p.Add("e", EventTypeTransactionItem)
	p.Add("ti_id", v.OrderID)
	p.Add("ti_sk", item.SKU)
	p.Add("ti_nm", item.Name)
	p.Add("ti_ca", item.Category)
	p.Add("ti_pr", item.Price)
	p.Add("ti_qu", item.Quantity)
	p.Add("ti_cu", v.Currency)
	return p
}

func fieldIndex(field string, i int) string {
	return field + " (item " + stringify(i) + ")"
}
