package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/sublatesublate-design/legal-database/service"

	"github.com/gin-gonic/gin"
)

// Tool names accepted by POST /api/tools/:name
const (
	ToolSearchLaws           = "search_laws"
	ToolSearchArticles       = "search_articles"
	ToolGetArticle           = "get_article"
	ToolGetLawStructure      = "get_law_structure"
	ToolCheckLawValidity     = "check_law_validity"
	ToolVerifyLawCitation    = "verify_law_citation"
	ToolBatchVerifyCitations = "batch_verify_citations"
	ToolGetLegalBasis        = "get_legal_basis"
	ToolResolveLaw           = "resolve_law"
	ToolAddAlias             = "add_alias"
	ToolAddSynonym           = "add_synonym"
	ToolIngestDocument       = "ingest_document"
	ToolClearCaches          = "clear_caches"
	ToolStats                = "stats"
)

// LawArgs names one law by title, alias or id
type LawArgs struct {
	Law string `json:"law"`
}

// ArticleArgs names one article of a law
type ArticleArgs struct {
	Law     string `json:"law"`
	Article string `json:"article"`
}

// CitationArgs is one citation to verify
type CitationArgs struct {
	Law     string `json:"law"`
	Article string `json:"article"`
	Claimed string `json:"claimed"`
}

// TextArgs carries a passage of text
type TextArgs struct {
	Text string `json:"text"`
}

// ResolveArgs asks for the laws a name refers to
type ResolveArgs struct {
	Name string `json:"name"`
	All  bool   `json:"all"`
}

type tool struct {
	description string
	run         func(c *gin.Context) (interface{}, error)
}

// ToolHandler dispatches tool calls by name. Expected misses come back as
// successful results carrying a reason; only failures use the error envelope.
type ToolHandler struct {
	tools map[string]tool
}

// NewToolHandler creates a new tool handler. The ingest service is optional;
// without it ingest_document is not offered.
func NewToolHandler(laws *service.LawService, ingest *service.IngestService) *ToolHandler {
	h := &ToolHandler{tools: map[string]tool{
		ToolSearchLaws: {
			description: "Rank laws for a query, resolving law names and concept synonyms",
			run: bind(func(ctx context.Context, req service.SearchRequest) (interface{}, error) {
				return laws.SearchLaws(ctx, req)
			}),
		},
		ToolSearchArticles: {
			description: "Rank articles for a query, optionally within one law",
			run: bind(func(ctx context.Context, req service.SearchRequest) (interface{}, error) {
				return laws.SearchArticles(ctx, req)
			}),
		},
		ToolGetArticle: {
			description: "Fetch one article by law and article number",
			run: bind(func(ctx context.Context, args ArticleArgs) (interface{}, error) {
				return laws.GetArticle(ctx, args.Law, args.Article)
			}),
		},
		ToolGetLawStructure: {
			description: "Return the heading tree of a law",
			run: bind(func(ctx context.Context, args LawArgs) (interface{}, error) {
				return laws.GetLawStructure(ctx, args.Law)
			}),
		},
		ToolCheckLawValidity: {
			description: "Report whether a law is in force and what replaced it",
			run: bind(func(ctx context.Context, args LawArgs) (interface{}, error) {
				return laws.CheckLawValidity(ctx, args.Law)
			}),
		},
		ToolVerifyLawCitation: {
			description: "Compare a quoted article against the stored text",
			run: bind(func(ctx context.Context, args CitationArgs) (interface{}, error) {
				return laws.VerifyCitation(ctx, args.Law, args.Article, args.Claimed)
			}),
		},
		ToolBatchVerifyCitations: {
			description: "Find and verify every citation in a passage",
			run: bind(func(ctx context.Context, args TextArgs) (interface{}, error) {
				return laws.BatchVerify(ctx, args.Text)
			}),
		},
		ToolGetLegalBasis: {
			description: "Suggest laws for a case description by keyword search",
			run: bind(func(ctx context.Context, req service.LegalBasisRequest) (interface{}, error) {
				return laws.GetLegalBasis(ctx, req)
			}),
		},
		ToolResolveLaw: {
			description: "Map a law name or alias to the laws it refers to",
			run: bind(func(ctx context.Context, args ResolveArgs) (interface{}, error) {
				return laws.ResolveLaw(ctx, args.Name, args.All)
			}),
		},
		ToolAddAlias: {
			description: "Teach the resolver a new alias for a law",
			run: bind(func(ctx context.Context, req service.AliasRequest) (interface{}, error) {
				return laws.AddAlias(ctx, req)
			}),
		},
		ToolAddSynonym: {
			description: "Map a colloquial term to a canonical legal concept",
			run: bind(func(ctx context.Context, args AddSynonymRequest) (interface{}, error) {
				return laws.AddSynonym(ctx, args.Term, args.Canonical)
			}),
		},
		ToolClearCaches: {
			description: "Drop every cached result",
			run: func(c *gin.Context) (interface{}, error) {
				return laws.ClearCaches(c.Request.Context())
			},
		},
		ToolStats: {
			description: "Report corpus, cache and pool counters",
			run: func(c *gin.Context) (interface{}, error) {
				return laws.Stats(c.Request.Context())
			},
		},
	}}

	if ingest != nil {
		h.tools[ToolIngestDocument] = tool{
			description: "Parse and store one law text",
			run: bind(func(ctx context.Context, doc service.Document) (interface{}, error) {
				return ingest.Ingest(ctx, doc)
			}),
		}
	}
	return h
}

// bind decodes the JSON arguments before running a tool
func bind[T any](fn func(ctx context.Context, args T) (interface{}, error)) func(c *gin.Context) (interface{}, error) {
	return func(c *gin.Context) (interface{}, error) {
		var args T
		if err := c.ShouldBindJSON(&args); err != nil {
			return nil, invalidArgs{err}
		}
		return fn(c.Request.Context(), args)
	}
}

type invalidArgs struct {
	err error
}

func (e invalidArgs) Error() string {
	return "invalid arguments: " + e.err.Error()
}

// ListTools handles GET /api/tools
func (h *ToolHandler) ListTools(c *gin.Context) {
	names := make([]string, 0, len(h.tools))
	for name := range h.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	list := make([]gin.H, 0, len(names))
	for _, name := range names {
		list = append(list, gin.H{
			"name":        name,
			"description": h.tools[name].description,
		})
	}
	respondOK(c, http.StatusOK, gin.H{"tools": list})
}

// CallTool handles POST /api/tools/:name
func (h *ToolHandler) CallTool(c *gin.Context) {
	name := c.Param("name")
	t, ok := h.tools[name]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    CodeUnknownTool,
				"message": "unknown tool: " + name,
			},
		})
		return
	}

	result, err := t.run(c)
	if err != nil {
		if _, ok := err.(invalidArgs); ok {
			respondInvalid(c, err.Error())
			return
		}
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
