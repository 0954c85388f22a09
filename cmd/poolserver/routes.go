package main

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/searchktools/poolserver/app"
	"github.com/searchktools/poolserver/core"
	"github.com/searchktools/poolserver/core/http"
	"github.com/searchktools/poolserver/core/router"
)

var started = time.Now()

// demoRoutes returns the routes served by the serve command
func demoRoutes(s *core.Server) []router.Route {
	return []router.Route{
		{Method: http.MethodGet, Pattern: "/", Handler: http.HandlerFunc(index)},
		{Method: http.MethodGet, Pattern: "/api/status", Handler: http.HandlerFunc(status)},
		{Method: http.MethodGet, Pattern: "/api/users/:id", Handler: http.HandlerFunc(user)},
		{Method: http.MethodGet, Pattern: "/api/search", Handler: http.HandlerFunc(search)},
		{Method: http.MethodPost, Pattern: "/api/echo", Handler: http.HandlerFunc(echo)},
		{Method: http.MethodGet, Pattern: "/api/time.pb", Handler: http.HandlerFunc(protoTime)},
		{Method: http.MethodGet, Pattern: "/static/*filepath", Handler: http.HandlerFunc(static)},
		{Method: http.MethodGet, Pattern: "/debug/stats", Handler: http.HandlerFunc(func(*http.Request) *http.Response {
			return http.JSON(http.StatusOK, map[string]any{
				"server":  s.Stats(),
				"runtime": app.ReadGCStats(),
			})
		})},
	}
}

func index(*http.Request) *http.Response {
	return http.Text(http.StatusOK, "Welcome to poolserver!")
}

func status(*http.Request) *http.Response {
	return http.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(started).Round(time.Second).String(),
		"server": http.ServerName,
	})
}

func user(req *http.Request) *http.Response {
	return http.JSON(http.StatusOK, map[string]string{
		"user_id": req.Param("id"),
		"name":    "John Doe",
	})
}

func search(req *http.Request) *http.Response {
	return http.JSON(http.StatusOK, map[string]string{
		"query": req.QueryValue("q"),
		"page":  req.QueryValue("page"),
	})
}

// echo returns the JSON request body with a received timestamp added
func echo(req *http.Request) *http.Response {
	var body map[string]any
	if err := req.DecodeJSON(&body); err != nil {
		return http.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if body == nil {
		body = map[string]any{}
	}
	body["received_at"] = time.Now().UTC().Format(time.RFC3339)
	return http.JSON(http.StatusCreated, body)
}

// protoTime serves the current time as a protobuf Struct
func protoTime(*http.Request) *http.Response {
	now := timestamppb.Now()
	msg, err := structpb.NewStruct(map[string]any{
		"seconds": float64(now.GetSeconds()),
		"rfc3339": now.AsTime().Format(time.RFC3339Nano),
	})
	if err != nil {
		return http.Error(http.StatusInternalServerError)
	}
	return http.Proto(http.StatusOK, msg)
}

func static(req *http.Request) *http.Response {
	return http.Text(http.StatusOK, "static file: "+req.Param("filepath"))
}
