package preprocess

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	"github.com/kit-sdq/Retrieval-Augmented-TLR/internal/config"
	"github.com/kit-sdq/Retrieval-Augmented-TLR/pkg/types"
)

// Element types produced by code_method.
const (
	TypeClassDefinition = "source code class definition"
	TypeMethod          = "source code method"
)

// buildCodeMethod splits Java sources into class and method elements.
//
// For every class body, a class element (granularity 1, not compared) holds
// the text from the end of the previous class body up to the opening of this
// one. Each method below it (granularity 2, compared) holds the text from the
// end of the previous method, or the start of the class body, to the end of
// the method declaration.
func buildCodeMethod(args map[string]any) (SplitFunc, error) {
	language, err := config.RequiredString(args, "language")
	if err != nil {
		return nil, err
	}
	if language != "java" {
		return nil, fmt.Errorf("%w: method extraction for language %q", config.ErrNotSupported, language)
	}
	return splitJavaMethods, nil
}

func splitJavaMethods(ctx context.Context, artifact *types.Element) ([]*types.Element, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(java.GetLanguage())

	content := []byte(artifact.Content)
	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse java source: %w", err)
	}
	defer tree.Close()

	out := []*types.Element{artifact}
	classStart := uint32(0)
	for i, body := range collectNodes(tree.RootNode(), "class_body") {
		class := child(artifact, i, TypeClassDefinition, string(content[classStart:body.StartByte()]), false)
		out = append(out, class)

		methodStart := body.StartByte()
		for j, method := range collectNodes(body, "method_declaration") {
			out = append(out, child(class, j, TypeMethod, string(content[methodStart:method.EndByte()]), true))
			methodStart = method.EndByte()
		}
		classStart = body.EndByte()
	}
	return out, nil
}

// collectNodes returns the outermost nodes of the given type below n in
// document order. Matches are not searched for nested matches.
func collectNodes(n *sitter.Node, nodeType string) []*sitter.Node {
	if n.Type() == nodeType {
		return []*sitter.Node{n}
	}
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		out = append(out, collectNodes(n.Child(i), nodeType)...)
	}
	return out
}
