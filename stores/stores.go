package stores

import (
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// registry maps URL schemes to Constructors, and store URLs to the
// ActiveStores built from them.
type registry struct {
	mu           sync.Mutex
	constructors map[string]Constructor
	active       map[string]*ActiveStore
	building     singleflight.Group
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		constructors: make(map[string]Constructor),
		active:       make(map[string]*ActiveStore),
	}
}

// RegisterProviders adds Constructors of URL schemes, such as "s3" or "file".
// It's called by main before any Get.
func RegisterProviders(providers map[string]Constructor) {
	reg.mu.Lock()
	maps.Copy(reg.constructors, providers)
	reg.mu.Unlock()
}

// GetProviders returns a copy of registered Constructors, keyed on scheme.
func GetProviders() map[string]Constructor {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return maps.Clone(reg.constructors)
}

// Get returns the ActiveStore of |rawURL|, building it on first use.
// Concurrent first uses of a URL share one construction. Failed
// constructions aren't retained, and are retried by the next Get.
func Get(rawURL string) (*ActiveStore, error) {
	if as := reg.lookup(rawURL); as != nil {
		return as, nil
	}

	var ep, err = url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing store URL: %w", err)
	} else if !strings.HasSuffix(ep.Path, "/") {
		return nil, fmt.Errorf("store URL path must end in '/' (%s)", rawURL)
	}

	as, err, _ := reg.building.Do(rawURL, func() (interface{}, error) {
		if as := reg.lookup(rawURL); as != nil {
			return as, nil
		}
		reg.mu.Lock()
		var constructor, ok = reg.constructors[ep.Scheme]
		reg.mu.Unlock()

		if !ok {
			return nil, fmt.Errorf("unsupported store scheme: %s", ep.Scheme)
		}
		var store, err = constructor(ep)
		if err != nil {
			return nil, err
		}
		var as = NewActiveStore(rawURL, store)

		reg.mu.Lock()
		reg.active[rawURL] = as
		activeStores.Set(float64(len(reg.active)))
		reg.mu.Unlock()

		return as, nil
	})
	if err != nil {
		return nil, err
	}
	return as.(*ActiveStore), nil
}

func (r *registry) lookup(rawURL string) *ActiveStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[rawURL]
}

var (
	activeStores = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagevfs_store_active",
		Help: "Number of block stores built from store URLs.",
	})
	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagevfs_store_operation_duration_seconds",
		Help:    "Duration of block store operations.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	}, []string{"store", "operation", "status"})
	storeOperationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevfs_store_operation_total",
		Help: "Count of block store operations.",
	}, []string{"store", "operation", "status"})
	storePutBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevfs_store_put_bytes_total",
		Help: "Bytes of blocks written to block stores.",
	}, []string{"store"})
	storeListItems = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagevfs_store_list_items_count",
		Help:    "Number of paths enumerated by block store listings.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 20),
	}, []string{"store"})
)
