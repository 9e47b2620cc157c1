// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/config"
	"github.com/bdm-project/scentcf/model/itemcf"
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

const homeText = "Perfume Recommendation Service"

// ErrModelNotLoaded is returned before the first model generation is published.
var ErrModelNotLoaded = errors.New("model not loaded")

// RecommendResponse is the response of the /recommend endpoint.
type RecommendResponse struct {
	RecommendedPerfumes []string `json:"recommended_perfumes"`
}

// ErrorResponse is the error body of the /recommend endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ModelInfo describes the model being served.
type ModelInfo struct {
	itemcf.Meta
	Generation int64 `json:"generation"`
}

type HealthStatus struct {
	Ready       bool   `json:"ready"`
	ModelLoaded bool   `json:"model_loaded"`
	Generation  int64  `json:"generation"`
	Message     string `json:"message,omitempty"`
}

// RestServer implements a REST-ful API server over the current model generation.
type RestServer struct {
	Config     *config.Config
	Holder     *itemcf.Holder
	WebService *restful.WebService
	HttpServer *http.Server

	cache *ttlcache.Cache[string, []itemcf.Score]
}

func NewRestServer(cfg *config.Config, holder *itemcf.Holder) *RestServer {
	s := &RestServer{
		Config:     cfg,
		Holder:     holder,
		WebService: new(restful.WebService),
		HttpServer: &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)},
	}
	if cfg.Server.CacheTTL > 0 {
		s.cache = ttlcache.New(ttlcache.WithTTL[string, []itemcf.Score](cfg.Server.CacheTTL))
	}
	return s
}

// StartHttpServer starts the REST-ful API server and blocks until it is shut down.
func (s *RestServer) StartHttpServer(container *restful.Container) error {
	if s.cache != nil {
		go s.cache.Start()
		defer s.cache.Stop()
	}
	// register restful APIs
	s.CreateWebService()
	container.Add(s.WebService)
	// register swagger UI
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	// register prometheus
	container.Handle("/metrics", promhttp.Handler())

	log.Logger().Info("start http server", zap.String("url", "http://"+s.HttpServer.Addr))
	s.HttpServer.Handler = container
	if err := s.HttpServer.ListenAndServe(); err != http.ErrServerClosed {
		return errors.Trace(err)
	}
	return nil
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	// generate request id
	requestId := uuid.New().String()
	resp.AddHeader("X-Request-ID", requestId)

	start := time.Now()
	chain.ProcessFilter(req, resp)
	responseTime := time.Since(start)
	if req.Request.URL.Path != "/api/health/live" && req.Request.URL.Path != "/api/health/ready" &&
		req.Request.URL.Path != "/metrics" {
		log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
			zap.Int("status_code", resp.StatusCode()),
			zap.Duration("response_time", responseTime))
	}
}

func MetricsFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	start := time.Now()
	chain.ProcessFilter(req, resp)
	route := req.SelectedRoutePath()
	if route == "" {
		return
	}
	RequestSecondsVec.WithLabelValues(route).Observe(time.Since(start).Seconds())
	RequestsTotalVec.WithLabelValues(route, strconv.Itoa(resp.StatusCode())).Inc()
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Path("/").Produces(restful.MIME_JSON)
	ws.Filter(otelrestful.OTelFilter("scentcf"))
	ws.Filter(LogFilter)
	ws.Filter(MetricsFilter)

	ws.Route(ws.GET("/").To(s.home).
		Doc("Name of the service.").
		Produces("text/plain").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Writes(""))
	ws.Route(ws.GET("/recommend").To(s.getRecommendPerfumes).
		Doc("Recommend perfumes for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.QueryParameter("user_id", "identifier of the user").DataType("string").Required(true)).
		Param(ws.QueryParameter("top_n", "number of returned perfumes").DataType("int")).
		Returns(http.StatusOK, "OK", RecommendResponse{}).
		Returns(http.StatusBadRequest, "Bad Request", ErrorResponse{}).
		Writes(RecommendResponse{}))
	ws.Route(ws.GET("/api/recommend/{user-id}").To(s.getRecommend).
		Doc("Get recommendation for a user.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("int")).
		Param(ws.QueryParameter("with-score", "return predicted scores").DataType("boolean")).
		Writes([]string{}))
	ws.Route(ws.GET("/api/item/{item-id}/neighbors").To(s.getItemNeighbors).
		Doc("Get neighbors of an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("string")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("int")).
		Writes([]itemcf.Score{}))
	ws.Route(ws.GET("/api/model").To(s.getModel).
		Doc("Get metadata of the model being served.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"model"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(ModelInfo{}))
	ws.Route(ws.GET("/api/health/live").To(s.checkLive).
		Doc("Probe the liveness of this node.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Returns(http.StatusOK, "OK", HealthStatus{}).
		Writes(HealthStatus{}))
	ws.Route(ws.GET("/api/health/ready").To(s.checkReady).
		Doc("Probe the readiness of this node.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
		Returns(http.StatusOK, "OK", HealthStatus{}).
		Returns(http.StatusServiceUnavailable, "Service Unavailable", HealthStatus{}).
		Writes(HealthStatus{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

// ParseBool parses a boolean from the query parameter.
func ParseBool(request *restful.Request, name string, fallback bool) (bool, error) {
	valueString := request.QueryParameter(name)
	if valueString == "" {
		return fallback, nil
	}
	return strconv.ParseBool(valueString)
}

func (s *RestServer) home(_ *restful.Request, response *restful.Response) {
	Text(response, homeText)
}

// getRecommendPerfumes serves GET /recommend?user_id=&top_n=.
func (s *RestServer) getRecommendPerfumes(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	userId := request.QueryParameter("user_id")
	if userId == "" {
		writeErrorJSON(response, http.StatusBadRequest, "user_id is required")
		return
	}
	n, err := ParseInt(request, "top_n", s.Config.Server.DefaultN)
	if err != nil || n < 0 {
		writeErrorJSON(response, http.StatusBadRequest, "top_n must be a non-negative integer")
		return
	}
	scores, err := s.Recommend(userId, n)
	if err != nil {
		switch {
		case errors.Is(err, ErrModelNotLoaded):
			writeErrorJSON(response, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, errors.NotFound):
			writeErrorJSON(response, http.StatusNotFound, err.Error())
		default:
			log.ResponseLogger(response).Error("failed to recommend", zap.Error(err))
			writeErrorJSON(response, http.StatusInternalServerError, err.Error())
		}
		return
	}
	Ok(response, RecommendResponse{
		RecommendedPerfumes: lo.Map(scores, func(score itemcf.Score, _ int) string { return score.Id }),
	})
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	userId := request.PathParameter("user-id")
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	if n < 0 {
		BadRequest(response, errors.NotValidf("n = %d", n))
		return
	}
	withScore, err := ParseBool(request, "with-score", false)
	if err != nil {
		BadRequest(response, err)
		return
	}
	scores, err := s.Recommend(userId, n)
	if err != nil {
		s.writeError(response, err)
		return
	}
	if withScore {
		Ok(response, scores)
	} else {
		Ok(response, lo.Map(scores, func(score itemcf.Score, _ int) string { return score.Id }))
	}
}

func (s *RestServer) getItemNeighbors(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	itemId := request.PathParameter("item-id")
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		BadRequest(response, err)
		return
	}
	if n < 0 {
		BadRequest(response, errors.NotValidf("n = %d", n))
		return
	}
	model, _ := s.Holder.Load()
	if model == nil {
		s.writeError(response, ErrModelNotLoaded)
		return
	}
	neighbors, err := model.ItemNeighbors(itemId, n)
	if err != nil {
		s.writeError(response, err)
		return
	}
	Ok(response, neighbors)
}

func (s *RestServer) getModel(request *restful.Request, response *restful.Response) {
	if !s.auth(request, response) {
		return
	}
	model, generation := s.Holder.Load()
	if model == nil {
		s.writeError(response, ErrModelNotLoaded)
		return
	}
	Ok(response, ModelInfo{Meta: model.Meta(), Generation: generation})
}

func (s *RestServer) checkLive(_ *restful.Request, response *restful.Response) {
	_, generation := s.Holder.Load()
	Ok(response, HealthStatus{
		Ready:       true,
		ModelLoaded: generation > 0,
		Generation:  generation,
	})
}

func (s *RestServer) checkReady(_ *restful.Request, response *restful.Response) {
	model, generation := s.Holder.Load()
	status := HealthStatus{
		Ready:       model != nil,
		ModelLoaded: model != nil,
		Generation:  generation,
	}
	if model == nil {
		status.Message = ErrModelNotLoaded.Error()
		response.Header().Set("Access-Control-Allow-Origin", "*")
		if err := response.WriteHeaderAndJson(http.StatusServiceUnavailable, status, restful.MIME_JSON); err != nil {
			log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
		}
		return
	}
	Ok(response, status)
}

// Recommend returns top n items for a user from the current generation. Results are
// cached per generation.
func (s *RestServer) Recommend(userId string, n int) ([]itemcf.Score, error) {
	start := time.Now()
	defer func() {
		RecommendSeconds.Observe(time.Since(start).Seconds())
	}()
	model, generation := s.Holder.Load()
	if model == nil {
		return nil, ErrModelNotLoaded
	}
	key := fmt.Sprintf("%d/%s/%d", generation, userId, n)
	if s.cache != nil {
		if item := s.cache.Get(key); item != nil {
			CacheHitsTotal.Inc()
			return item.Value(), nil
		}
	}
	scores, err := model.ScoredRecommend(userId, n)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if s.cache != nil {
		s.cache.Set(key, scores, ttlcache.DefaultTTL)
	}
	return scores, nil
}

// PurgeCache drops cached results of previous generations.
func (s *RestServer) PurgeCache() {
	if s.cache != nil {
		s.cache.DeleteAll()
	}
}

func (s *RestServer) writeError(response *restful.Response, err error) {
	switch {
	case errors.Is(err, ErrModelNotLoaded):
		ServiceUnavailable(response, err)
	case errors.Is(err, errors.NotFound):
		PageNotFound(response, err)
	default:
		InternalServerError(response, err)
	}
}

func writeErrorJSON(response *restful.Response, status int, message string) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteHeaderAndJson(status, ErrorResponse{Error: message}, restful.MIME_JSON); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// ServiceUnavailable returns a service unavailable error.
func ServiceUnavailable(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err = response.WriteError(http.StatusServiceUnavailable, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// PageNotFound returns a not found error.
func PageNotFound(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteError(http.StatusNotFound, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

// Text returns a plain text.
func Text(response *restful.Response, content string) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := response.Write([]byte(content)); err != nil {
		log.ResponseLogger(response).Error("failed to write text", zap.Error(err))
	}
}

func (s *RestServer) auth(request *restful.Request, response *restful.Response) bool {
	if s.Config.Server.APIKey == "" {
		return true
	}
	apikey := request.HeaderParameter("X-API-Key")
	if apikey == s.Config.Server.APIKey {
		return true
	}
	log.ResponseLogger(response).Error("unauthorized", zap.String("X-API-Key", apikey))
	if err := response.WriteError(http.StatusUnauthorized, fmt.Errorf("unauthorized")); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
	return false
}
