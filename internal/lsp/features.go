package lsp

import (
	"context"
	"encoding/json"
)

func (s *Server) definition(_ context.Context, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.ws.Query().Definition(p.TextDocument.URI, p.Position), nil
}

func (s *Server) references(_ context.Context, raw json.RawMessage) (any, error) {
	var p ReferenceParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.ws.Query().References(p.TextDocument.URI, p.Position, p.Context.IncludeDeclaration), nil
}

func (s *Server) hover(_ context.Context, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	h := s.ws.Query().Hover(p.TextDocument.URI, p.Position)
	if h == nil {
		return nil, nil
	}
	return Hover{Contents: MarkupContent{Kind: "plaintext", Value: h.Contents}, Range: h.Range}, nil
}

func (s *Server) completion(_ context.Context, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.ws.Query().Completion(p.TextDocument.URI, p.Position), nil
}

func (s *Server) signatureHelp(_ context.Context, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if h := s.ws.Query().SignatureHelp(p.TextDocument.URI, p.Position); h != nil {
		return h, nil
	}
	return nil, nil
}

func (s *Server) documentSymbol(_ context.Context, raw json.RawMessage) (any, error) {
	var p DocumentParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.ws.Query().DocumentSymbols(p.TextDocument.URI), nil
}

func (s *Server) foldingRange(_ context.Context, raw json.RawMessage) (any, error) {
	var p DocumentParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.ws.Query().FoldingRanges(p.TextDocument.URI), nil
}

func (s *Server) rename(_ context.Context, raw json.RawMessage) (any, error) {
	var p RenameParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	if p.NewName == "" {
		return nil, &Error{Code: CodeInvalidParams, Message: "empty name"}
	}
	edits := s.ws.Query().Rename(p.TextDocument.URI, p.Position, p.NewName)
	if edits == nil {
		return nil, nil
	}
	return WorkspaceEdit{Changes: edits}, nil
}

func (s *Server) documentHighlight(_ context.Context, raw json.RawMessage) (any, error) {
	var p TextDocumentPositionParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.ws.Query().DocumentHighlights(p.TextDocument.URI, p.Position), nil
}

func (s *Server) codeLens(_ context.Context, raw json.RawMessage) (any, error) {
	var p DocumentParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	lenses := s.ws.Query().CodeLenses(p.TextDocument.URI)
	out := make([]CodeLens, len(lenses))
	for i, l := range lenses {
		out[i] = CodeLens{Range: l.Range, Command: Command{Title: l.Title}}
	}
	return out, nil
}

func (s *Server) workspaceSymbol(_ context.Context, raw json.RawMessage) (any, error) {
	var p WorkspaceSymbolParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	return s.ws.Query().SearchSymbols(p.Query), nil
}
