package varlink

import (
	"fmt"
	"strings"

	"go.varlink.dev/varlink/sansio"
	"go.varlink.dev/varlink/varlinkdef"
)

// Handler answers the methods of one registered Varlink interface. member is
// the method name with the "interface." prefix already stripped.
type Handler interface {
	Dispatch(call *Call, member string) error
}

// RegistryInterface is one interface registered with a Registry: its name,
// its IDL source text (returned verbatim by GetInterfaceDescription), and
// the parsed AST used to validate that Name matches the IDL's own interface
// declaration.
type RegistryInterface struct {
	Name       string
	Definition string

	parsed *varlinkdef.Interface
}

// RegistryOptions is the service metadata org.varlink.service.GetInfo
// reports.
type RegistryOptions struct {
	Vendor  string
	Product string
	Version string
	URL     string
}

// Registry maps interface names to Handlers and answers org.varlink.service
// introspection calls itself. The zero value is not usable; construct one
// with NewRegistry.
//
// A Registry is read-only after its Add calls finish and may then be
// shared, unsynchronized, across every connection a Listener accepts.
type Registry struct {
	options RegistryOptions

	interfaces []*RegistryInterface
	byName     map[string]*RegistryInterface
	handlers   map[string]Handler

	service *RegistryInterface
}

// NewRegistry creates an empty Registry reporting the given metadata. The
// reserved "org.varlink.service" interface is registered automatically and
// always reported first by GetInfo.
func NewRegistry(options RegistryOptions) *Registry {
	reg := &Registry{
		options:  options,
		byName:   make(map[string]*RegistryInterface),
		handlers: make(map[string]Handler),
	}
	reg.service = reg.add(&RegistryInterface{Name: "org.varlink.service", Definition: serviceDefinition}, &serviceHandler{registry: reg})
	return reg
}

// Add registers handler as the implementation of iface. It panics if
// iface.Definition does not parse or its declared interface name does not
// match iface.Name, the same fail-fast behavior the teacher applies to its
// embedded org.varlink.service.varlink at package init time.
func (reg *Registry) Add(iface *RegistryInterface, handler Handler) {
	reg.add(iface, handler)
}

func (reg *Registry) add(iface *RegistryInterface, handler Handler) *RegistryInterface {
	parsed, err := varlinkdef.Parse(strings.NewReader(iface.Definition))
	if err != nil {
		panic(fmt.Sprintf("varlink: registering %q: %v", iface.Name, err))
	}
	if parsed.Name != iface.Name {
		panic(fmt.Sprintf("varlink: registering %q: definition declares interface %q", iface.Name, parsed.Name))
	}
	iface.parsed = parsed

	reg.interfaces = append(reg.interfaces, iface)
	reg.byName[iface.Name] = iface
	reg.handlers[iface.Name] = handler
	return iface
}

// Dispatch implements the Varlink service dispatch algorithm (splitting the
// method on its last '.', resolving the target interface, and delegating to
// its Handler) and replies on sm directly for the cases dispatch itself
// owns: a method with no '.' and an unregistered interface.
func (reg *Registry) Dispatch(sm *sansio.ServerSM, req *sansio.Request) error {
	call := newCall(sm, req)

	iface, member := splitMethod(req.Method)
	if iface == "" {
		return call.ReplyInterfaceNotFound(req.Method)
	}

	handler, ok := reg.handlers[iface]
	if !ok {
		return call.ReplyInterfaceNotFound(iface)
	}
	return handler.Dispatch(call, member)
}

// interfaceNames returns every registered interface name in registration
// order, with "org.varlink.service" always first.
func (reg *Registry) interfaceNames() []string {
	names := make([]string, 0, len(reg.interfaces))
	names = append(names, reg.service.Name)
	for _, iface := range reg.interfaces {
		if iface == reg.service {
			continue
		}
		names = append(names, iface.Name)
	}
	return names
}

// serviceHandler answers the built-in org.varlink.service interface:
// GetInfo and GetInterfaceDescription.
type serviceHandler struct {
	registry *Registry
}

type getInfoOut struct {
	Vendor     string   `json:"vendor"`
	Product    string   `json:"product"`
	Version    string   `json:"version"`
	URL        string   `json:"url"`
	Interfaces []string `json:"interfaces"`
}

type getInterfaceDescriptionIn struct {
	Interface string `json:"interface"`
}

type getInterfaceDescriptionOut struct {
	Description string `json:"description"`
}

func (h *serviceHandler) Dispatch(call *Call, member string) error {
	switch member {
	case "GetInfo":
		return call.Reply(getInfoOut{
			Vendor:     h.registry.options.Vendor,
			Product:    h.registry.options.Product,
			Version:    h.registry.options.Version,
			URL:        h.registry.options.URL,
			Interfaces: h.registry.interfaceNames(),
		})
	case "GetInterfaceDescription":
		var in getInterfaceDescriptionIn
		if err := unmarshalParameters(call.Parameters(), &in); err != nil {
			return call.ReplyInvalidParameter("interface")
		}
		iface, ok := h.registry.byName[in.Interface]
		if !ok {
			return call.ReplyInvalidParameter("interface")
		}
		return call.Reply(getInterfaceDescriptionOut{Description: iface.Definition})
	default:
		return call.ReplyMethodNotFound(member)
	}
}
