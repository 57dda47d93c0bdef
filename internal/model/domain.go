package model

import "time"

const (
	KindList   = "list"
	KindObject = "object"
)

// Descriptor is the static source configuration of one broadcast domain.
type Descriptor struct {
	Name       string        `json:"name" yaml:"name"`
	EventName  string        `json:"event_name" yaml:"event_name"`
	DataKey    string        `json:"data_key,omitempty" yaml:"data_key"`
	Endpoint   string        `json:"endpoint,omitempty" yaml:"endpoint"`
	Kind       string        `json:"kind,omitempty" yaml:"kind"`
	PollPeriod time.Duration `json:"poll_period" yaml:"poll_period"`
	Cooldown   time.Duration `json:"cooldown" yaml:"cooldown"`

	// SubEndpoints makes the domain composite: every sub-endpoint is
	// fetched concurrently and the results are merged by name.
	SubEndpoints []SubEndpoint `json:"sub_endpoints,omitempty" yaml:"sub_endpoints"`
}

type SubEndpoint struct {
	Name     string `json:"name" yaml:"name"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	DataKey  string `json:"data_key" yaml:"data_key"`
	Kind     string `json:"kind,omitempty" yaml:"kind"`
}

func (d Descriptor) IsComposite() bool {
	return len(d.SubEndpoints) > 0
}

// DomainStatus is the read-only diagnostic view of a domain's state.
type DomainStatus struct {
	Name         string     `json:"name"`
	EventName    string     `json:"event_name"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	HasSnapshot  bool       `json:"has_snapshot"`
	IsFetching   bool       `json:"is_fetching"`
	LastFetchAt  *time.Time `json:"last_fetch_at"`
	LastChangeAt *time.Time `json:"last_change_at"`
	LastError    string     `json:"last_error,omitempty"`
	Fetches      int64      `json:"fetches"`
	Publishes    int64      `json:"publishes"`
	Errors       int64      `json:"errors"`
}

// EmptyPayload is the value a domain publishes when the upstream has no data
// under its key.
func EmptyPayload(kind string) any {
	if kind == KindObject {
		return map[string]any{}
	}
	return []any{}
}
