package handlers

import (
	"net/http"
	"strconv"

	"github.com/sublatesublate-design/legal-database/service"

	"github.com/gin-gonic/gin"
)

// LawHandler serves the read-side REST routes
type LawHandler struct {
	laws *service.LawService
}

// NewLawHandler creates a new law handler
func NewLawHandler(laws *service.LawService) *LawHandler {
	return &LawHandler{laws: laws}
}

// searchRequest reads the search parameters shared by both search routes
func searchRequest(c *gin.Context) (service.SearchRequest, bool) {
	req := service.SearchRequest{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		Status:   c.Query("status"),
		Law:      c.Query("law"),
	}
	for name, dst := range map[string]*int{"offset": &req.Offset, "limit": &req.Limit} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			respondInvalid(c, "invalid "+name+": "+v)
			return req, false
		}
		*dst = n
	}
	return req, true
}

// SearchLaws handles GET /api/laws/search
func (h *LawHandler) SearchLaws(c *gin.Context) {
	req, ok := searchRequest(c)
	if !ok {
		return
	}

	result, err := h.laws.SearchLaws(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// SearchArticles handles GET /api/articles/search
func (h *LawHandler) SearchArticles(c *gin.Context) {
	req, ok := searchRequest(c)
	if !ok {
		return
	}

	result, err := h.laws.SearchArticles(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Miss != nil {
		respondLookup(c, false, result.Miss.Reason, result)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ResolveLaw handles GET /api/laws/resolve
func (h *LawHandler) ResolveLaw(c *gin.Context) {
	all, _ := strconv.ParseBool(c.DefaultQuery("all", "false"))

	result, err := h.laws.ResolveLaw(c.Request.Context(), c.Query("name"), all)
	if err != nil {
		respondError(c, err)
		return
	}
	respondLookup(c, result.Found, result.Reason, result)
}

// GetArticle handles GET /api/laws/:law/articles/:number
func (h *LawHandler) GetArticle(c *gin.Context) {
	result, err := h.laws.GetArticle(c.Request.Context(), c.Param("law"), c.Param("number"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondLookup(c, result.Found, result.Reason, result)
}

// GetStructure handles GET /api/laws/:law/structure
func (h *LawHandler) GetStructure(c *gin.Context) {
	result, err := h.laws.GetLawStructure(c.Request.Context(), c.Param("law"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondLookup(c, result.Found, result.Reason, result)
}

// CheckValidity handles GET /api/laws/:law/validity
func (h *LawHandler) CheckValidity(c *gin.Context) {
	result, err := h.laws.CheckLawValidity(c.Request.Context(), c.Param("law"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondLookup(c, result.Found, result.Reason, result)
}

// VerifyCitationRequest represents the request body for verifying one citation
type VerifyCitationRequest struct {
	Law     string `json:"law" binding:"required"`
	Article string `json:"article" binding:"required"`
	Claimed string `json:"claimed"`
}

// VerifyCitation handles POST /api/citations/verify. Every classification,
// not_found included, is a successful answer.
func (h *LawHandler) VerifyCitation(c *gin.Context) {
	var req VerifyCitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err.Error())
		return
	}

	result, err := h.laws.VerifyCitation(c.Request.Context(), req.Law, req.Article, req.Claimed)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// BatchVerifyRequest represents the request body for verifying a passage
type BatchVerifyRequest struct {
	Text string `json:"text" binding:"required"`
}

// BatchVerify handles POST /api/citations/batch
func (h *LawHandler) BatchVerify(c *gin.Context) {
	var req BatchVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err.Error())
		return
	}

	result, err := h.laws.BatchVerify(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// AddAlias handles POST /api/aliases
func (h *LawHandler) AddAlias(c *gin.Context) {
	var req service.AliasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err.Error())
		return
	}

	alias, err := h.laws.AddAlias(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, alias)
}

// AddSynonymRequest represents the request body for adding a concept synonym
type AddSynonymRequest struct {
	Term      string `json:"term" binding:"required"`
	Canonical string `json:"canonical" binding:"required"`
}

// AddSynonym handles POST /api/synonyms
func (h *LawHandler) AddSynonym(c *gin.Context) {
	var req AddSynonymRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err.Error())
		return
	}

	syn, err := h.laws.AddSynonym(c.Request.Context(), req.Term, req.Canonical)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, syn)
}

// Stats handles GET /api/stats
func (h *LawHandler) Stats(c *gin.Context) {
	result, err := h.laws.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ClearCaches handles POST /api/cache/clear
func (h *LawHandler) ClearCaches(c *gin.Context) {
	stats, err := h.laws.ClearCaches(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}
