package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kinfkong/liekodb"
	"github.com/kinfkong/liekodb/internal/pipeline"
)

// findRequestBody is the JSON body accepted by GET /collections/{c}: spec
// §6 routes read bodies for GET requests the way the route table
// documents (body.filters, body.options), which gin's ShouldBindJSON
// supports regardless of verb.
type findRequestBody struct {
	Filters liekodb.Doc  `json:"filters"`
	Options queryOptions `json:"options"`
}

type queryOptions struct {
	Sort       []sortKeyBody `json:"sort"`
	Skip       int           `json:"skip"`
	Limit      *int          `json:"limit"`
	Projection liekodb.Doc   `json:"projection"`
}

type sortKeyBody struct {
	Path string `json:"path"`
	Dir  int    `json:"dir"`
}

func (o queryOptions) toFindOptions() liekodb.FindOptions {
	limit := pipeline.LimitAll
	if o.Limit != nil {
		limit = *o.Limit
	}
	sortSpec := make(pipeline.Sort, len(o.Sort))
	for i, k := range o.Sort {
		sortSpec[i] = pipeline.SortKey{Path: k.Path, Dir: k.Dir}
	}
	return liekodb.FindOptions{Sort: sortSpec, Skip: o.Skip, Limit: limit, Projection: o.Projection}
}

func bindBody(c *gin.Context, body interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(body); err != nil {
		c.JSON(http.StatusBadRequest, liekodb.Result{
			Success: false,
			Error:   &liekodb.Error{Message: "liekodb: malformed request body: " + err.Error(), Code: liekodb.CodeValidation},
		})
		return false
	}
	return true
}

func (s *Server) handleFind(c *gin.Context) {
	var body findRequestBody
	if !bindBody(c, &body) {
		return
	}
	r := s.engine.Find(c.Param("collection"), body.Filters, body.Options.toFindOptions())
	s.respond(c, r)
}

func (s *Server) handleCount(c *gin.Context) {
	var body struct {
		Filters liekodb.Doc `json:"filters"`
	}
	if !bindBody(c, &body) {
		return
	}
	s.respond(c, s.engine.Count(c.Param("collection"), body.Filters))
}

func (s *Server) handlePaginate(c *gin.Context) {
	var body struct {
		Filters liekodb.Doc `json:"filters"`
		Options struct {
			Page  int           `json:"page"`
			Limit int           `json:"limit"`
			Sort  []sortKeyBody `json:"sort"`
		} `json:"options"`
	}
	if !bindBody(c, &body) {
		return
	}
	sortSpec := make(pipeline.Sort, len(body.Options.Sort))
	for i, k := range body.Options.Sort {
		sortSpec[i] = pipeline.SortKey{Path: k.Path, Dir: k.Dir}
	}
	opts := liekodb.PaginateOptions{Page: body.Options.Page, Limit: body.Options.Limit, Sort: sortSpec}
	s.respond(c, s.engine.Paginate(c.Param("collection"), body.Filters, opts))
}

func (s *Server) handleFindByID(c *gin.Context) {
	s.respond(c, s.engine.FindByID(c.Param("collection"), c.Param("id")))
}

func (s *Server) handleInsert(c *gin.Context) {
	var body struct {
		Data []liekodb.Doc `json:"data"`
	}
	if !bindBody(c, &body) {
		return
	}
	s.respond(c, s.engine.Insert(c.Param("collection"), body.Data))
}

func (s *Server) handleCreateIndex(c *gin.Context) {
	var body struct {
		Index struct {
			Name   string `json:"name"`
			Unique bool   `json:"unique"`
			Fields []struct {
				Path string `json:"path"`
				Dir  int    `json:"dir"`
			} `json:"fields"`
		} `json:"index"`
	}
	if !bindBody(c, &body) {
		return
	}
	fields := make([]liekodb.IndexField, len(body.Index.Fields))
	for i, f := range body.Index.Fields {
		fields[i] = liekodb.IndexField{Path: f.Path, Dir: f.Dir}
	}
	spec := liekodb.IndexSpec{Name: body.Index.Name, Fields: fields, Unique: body.Index.Unique}
	s.respond(c, s.engine.CreateIndex(c.Param("collection"), spec))
}

func (s *Server) handleUpdate(c *gin.Context) {
	var body struct {
		Filters    liekodb.Doc `json:"filters"`
		Update     liekodb.Doc `json:"update"`
		ReturnIDs  bool        `json:"returnIds"`
		ReturnDocs bool        `json:"returnDocs"`
		MaxReturn  int         `json:"maxReturn"`
	}
	if !bindBody(c, &body) {
		return
	}
	opts := liekodb.UpdateOptions{ReturnIDs: body.ReturnIDs, ReturnDocs: body.ReturnDocs, MaxReturn: body.MaxReturn}
	s.respond(c, s.engine.Update(c.Param("collection"), body.Filters, body.Update, opts))
}

func (s *Server) handleUpdateByID(c *gin.Context) {
	var body struct {
		Update     liekodb.Doc `json:"update"`
		ReturnDocs bool        `json:"returnDocs"`
	}
	if !bindBody(c, &body) {
		return
	}
	opts := liekodb.UpdateOptions{ReturnDocs: body.ReturnDocs, MaxReturn: 1}
	s.respond(c, s.engine.UpdateByID(c.Param("collection"), c.Param("id"), body.Update, opts))
}

func (s *Server) handleDelete(c *gin.Context) {
	var body struct {
		Filters liekodb.Doc `json:"filters"`
	}
	if !bindBody(c, &body) {
		return
	}
	s.respond(c, s.engine.Delete(c.Param("collection"), body.Filters))
}

func (s *Server) handleDeleteByID(c *gin.Context) {
	s.respond(c, s.engine.DeleteByID(c.Param("collection"), c.Param("id")))
}

func (s *Server) handleDrop(c *gin.Context) {
	s.respond(c, s.engine.Drop(c.Param("collection")))
}
