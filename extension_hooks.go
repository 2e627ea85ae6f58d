package ingest

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-ingest/core"
)

// HandlerRegistrar is the slice of the pipeline handler packs attach to.
type HandlerRegistrar interface {
	RegisterHandler(eventType core.EventType, handler core.EventHandler) error
}

// HandlerPack is a named set of event handlers a downstream module
// contributes, typically one pack per domain (messaging, contacts, groups).
type HandlerPack struct {
	Name     string
	Handlers map[core.EventType]core.EventHandler
}

type CommandQueryBundleFactory func(p CommandQueryPipeline) (any, error)

// ExtensionHooks collects downstream contributions before pipeline
// composition: handler packs and command/query bundles. Registration is name
// keyed and first-wins.
type ExtensionHooks struct {
	mu sync.RWMutex

	handlerPacks map[string]HandlerPack
	bundles      map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		handlerPacks: map[string]HandlerPack{},
		bundles:      map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterHandlerPack(pack HandlerPack) error {
	if h == nil {
		return fmt.Errorf("ingest: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("ingest: handler pack name is required")
	}
	if len(pack.Handlers) == 0 {
		return fmt.Errorf("ingest: handler pack %q has no handlers", name)
	}

	normalized := HandlerPack{
		Name:     name,
		Handlers: make(map[core.EventType]core.EventHandler, len(pack.Handlers)),
	}
	for eventType, handler := range pack.Handlers {
		if handler == nil {
			return fmt.Errorf("ingest: handler pack %q has nil handler for %q", name, eventType)
		}
		normalized.Handlers[eventType] = handler
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.handlerPacks[name]; exists {
		return fmt.Errorf("ingest: handler pack %q already registered", name)
	}
	h.handlerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("ingest: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("ingest: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("ingest: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("ingest: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyHandlerPacks registers every contributed handler on the pipeline in
// deterministic pack order. Two packs claiming the same event type surface
// the pipeline's duplicate-handler error.
func (h *ExtensionHooks) ApplyHandlerPacks(registrar HandlerRegistrar) error {
	if h == nil {
		return nil
	}
	if registrar == nil {
		return fmt.Errorf("ingest: handler registrar is required")
	}

	for _, pack := range h.HandlerPacks() {
		eventTypes := make([]string, 0, len(pack.Handlers))
		for eventType := range pack.Handlers {
			eventTypes = append(eventTypes, string(eventType))
		}
		sort.Strings(eventTypes)
		for _, eventType := range eventTypes {
			if err := registrar.RegisterHandler(core.EventType(eventType), pack.Handlers[core.EventType(eventType)]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	p CommandQueryPipeline,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if p == nil {
		return nil, fmt.Errorf("ingest: command/query pipeline is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](p)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) HandlerPacks() []HandlerPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.handlerPacks))
	for name := range h.handlerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]HandlerPack, 0, len(names))
	for _, name := range names {
		pack := h.handlerPacks[name]
		copied := HandlerPack{
			Name:     pack.Name,
			Handlers: make(map[core.EventType]core.EventHandler, len(pack.Handlers)),
		}
		for eventType, handler := range pack.Handlers {
			copied.Handlers[eventType] = handler
		}
		out = append(out, copied)
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
