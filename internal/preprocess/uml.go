package preprocess

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

const xmiNamespace = "http://www.omg.org/spec/XMI/20131001"

// xmlNode is a generic XML element.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
}

// attr returns the value of the attribute local. A non-empty space also
// accepts the undeclared prefix of the same name.
func (n *xmlNode) attr(space, local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local != local {
			continue
		}
		if space == "" && a.Name.Space == "" {
			return a.Value
		}
		if space != "" && (a.Name.Space == space || a.Name.Space == "xmi") {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) children(local string) []*xmlNode {
	var out []*xmlNode
	for i := range n.Children {
		if n.Children[i].XMLName.Local == local {
			out = append(out, &n.Children[i])
		}
	}
	return out
}

func (n *xmlNode) index(byID map[string]*xmlNode) {
	if id := n.attr(xmiNamespace, "id"); id != "" {
		byID[id] = n
	}
	for i := range n.Children {
		n.Children[i].index(byID)
	}
}

type umlOptions struct {
	usePrefix                    bool
	includeUsages                bool
	includeOperations            bool
	includeInterfaceRealizations bool
}

// buildModelUML turns the top-level packaged elements of a UML model in XMI
// into one element each. Only components are compared.
//
// Arguments: use_prefix, include_usages, include_operations and
// include_interface_realizations, all true by default.
func buildModelUML(args map[string]any) (SplitFunc, error) {
	var opts umlOptions
	for key, dst := range map[string]*bool{
		"use_prefix":                     &opts.usePrefix,
		"include_usages":                 &opts.includeUsages,
		"include_operations":             &opts.includeOperations,
		"include_interface_realizations": &opts.includeInterfaceRealizations,
	} {
		v, err := config.Bool(args, key, true)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return func(_ context.Context, artifact *types.Element) ([]*types.Element, error) {
		return splitUML(artifact, opts)
	}, nil
}

func splitUML(artifact *types.Element, opts umlOptions) ([]*types.Element, error) {
	var root xmlNode
	if err := xml.Unmarshal([]byte(artifact.Content), &root); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	byID := map[string]*xmlNode{}
	root.index(byID)

	supplierName := func(n *xmlNode) (string, error) {
		id := n.attr("", "supplier")
		supplier, ok := byID[id]
		if !ok {
			return "", fmt.Errorf("unknown supplier %q", id)
		}
		return supplier.attr("", "name"), nil
	}

	out := []*types.Element{artifact}
	for i, pe := range root.children("packagedElement") {
		elementType := pe.attr(xmiNamespace, "type")
		if !opts.usePrefix {
			if _, after, found := strings.Cut(elementType, ":"); found {
				elementType = after
			}
		}

		var content strings.Builder
		fmt.Fprintf(&content, "Type: %s, Name: %s", elementType, pe.attr("", "name"))
		if opts.includeInterfaceRealizations {
			for _, ir := range pe.children("interfaceRealization") {
				name, err := supplierName(ir)
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(&content, "\n Interface Realization: %s", name)
			}
		}
		if opts.includeOperations {
			for _, op := range pe.children("ownedOperation") {
				fmt.Fprintf(&content, "\n Operation: %s", op.attr("", "name"))
			}
		}
		if opts.includeUsages {
			for _, usage := range pe.children("packagedElement") {
				name, err := supplierName(usage)
				if err != nil {
					return nil, err
				}
				fmt.Fprintf(&content, "\n Uses: %s", name)
			}
		}

		identifier := fmt.Sprintf("%s$%d$%s", artifact.Identifier, i, pe.attr(xmiNamespace, "id"))
		compare := elementType == "uml:Component" || elementType == "Component"
		out = append(out, types.NewElement(identifier, artifact.Type, content.String(), artifact, compare))
	}
	return out, nil
}
