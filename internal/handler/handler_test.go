package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pointsystem/internal/config"
	"pointsystem/internal/infrastructure/lock"
	"pointsystem/internal/model"
	"pointsystem/internal/repository/memory"
	"pointsystem/internal/service"
	"pointsystem/pkg/idgen"
	"pointsystem/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type HandlerTestSuite struct {
	suite.Suite
	store  *memory.Store
	server http.Handler
}

func TestHandler(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func (s *HandlerTestSuite) SetupTest() {
	gen, err := idgen.NewGenerator(1)
	require.NoError(s.T(), err)
	cfg := &config.Config{}
	cfg.Point.LockWaitTimeoutMs = 1000

	s.store = memory.New()
	s.store.PutAccount(1, 0)
	svc := service.NewPointService(s.store, lock.StoreRowLock{}, gen, cfg)
	s.server = SetupRouter(svc)
}

type result[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func doRequest[T any](t *testing.T, server http.Handler, method, path, body string) result[T] {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	var res result[T]
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&res))
	return res
}

func (s *HandlerTestSuite) TestChargeUseAndQuery() {
	t := s.T()

	res := doRequest[int64](t, s.server, http.MethodPatch, "/point/1/charge", `{"point": 1000}`)
	assert.Equal(t, response.CodeSuccess, res.Code)
	assert.Equal(t, int64(1000), res.Data)

	res = doRequest[int64](t, s.server, http.MethodPatch, "/point/1/use", `{"point": 300}`)
	assert.Equal(t, response.CodeSuccess, res.Code)
	assert.Equal(t, int64(700), res.Data)

	res = doRequest[int64](t, s.server, http.MethodGet, "/point/1", "")
	assert.Equal(t, response.CodeSuccess, res.Code)
	assert.Equal(t, int64(700), res.Data)

	histories := doRequest[[]model.PointHistory](t, s.server, http.MethodGet, "/point/1/histories", "")
	assert.Equal(t, response.CodeSuccess, histories.Code)
	require.Len(t, histories.Data, 2)
	assert.Equal(t, model.HistoryKindCharge, histories.Data[0].Kind)
	assert.Equal(t, model.HistoryKindUse, histories.Data[1].Kind)
	assert.Equal(t, int64(300), histories.Data[1].Amount)
}

func (s *HandlerTestSuite) TestErrors() {
	testCases := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
	}{
		{name: "用户ID不是数字", method: http.MethodGet, path: "/point/abc", wantCode: response.CodeParamError},
		{name: "用户ID超出范围", method: http.MethodGet, path: "/point/99999999999999999999", wantCode: response.CodeParamError},
		{name: "请求体不是JSON", method: http.MethodPatch, path: "/point/1/charge", body: "point=1", wantCode: response.CodeParamError},
		{name: "充值0积分", method: http.MethodPatch, path: "/point/1/charge", body: `{"point": 0}`, wantCode: response.CodeInvalidAmount},
		{name: "使用负数积分", method: http.MethodPatch, path: "/point/1/use", body: `{"point": -5}`, wantCode: response.CodeInvalidAmount},
		{name: "余额不足", method: http.MethodPatch, path: "/point/1/use", body: `{"point": 1}`, wantCode: response.CodeInsufficientBalance},
		{name: "查询不存在的用户", method: http.MethodGet, path: "/point/404", wantCode: response.CodeUserNotFound},
		{name: "给不存在的用户充值", method: http.MethodPatch, path: "/point/404/charge", body: `{"point": 100}`, wantCode: response.CodeUserNotFound},
		{name: "查询不存在用户的流水", method: http.MethodGet, path: "/point/404/histories", wantCode: response.CodeUserNotFound},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			res := doRequest[json.RawMessage](s.T(), s.server, tc.method, tc.path, tc.body)
			assert.Equal(s.T(), tc.wantCode, res.Code)
		})
	}
}

func (s *HandlerTestSuite) TestHealth() {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	s.server.ServeHTTP(recorder, req)
	assert.Equal(s.T(), http.StatusOK, recorder.Code)
}

func (s *HandlerTestSuite) TestNoRoute() {
	for _, path := range []string{"/points/1", "/point/1/refund"} {
		res := doRequest[json.RawMessage](s.T(), s.server, http.MethodGet, path, "")
		assert.Equal(s.T(), response.CodeNotFound, res.Code, path)
	}
}

// stubService 返回固定错误
type stubService struct {
	err error
}

func (s stubService) Charge(context.Context, int64, int64) (int64, error) { return 0, s.err }
func (s stubService) Use(context.Context, int64, int64) (int64, error)    { return 0, s.err }
func (s stubService) GetBalance(context.Context, int64) (int64, error)    { return 0, s.err }
func (s stubService) GetHistory(context.Context, int64) ([]*model.PointHistory, error) {
	return nil, s.err
}

func TestWriteError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "锁等待超时", err: service.ErrLockContention, wantCode: response.CodeLockContention},
		{name: "余额溢出", err: service.ErrAmountOverflow, wantCode: response.CodeAmountOverflow},
		{name: "包装后的余额不足", err: errors.Join(errors.New("ctx"), service.ErrInsufficientBalance), wantCode: response.CodeInsufficientBalance},
		{name: "未知错误", err: context.DeadlineExceeded, wantCode: response.CodeServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := SetupRouter(stubService{err: tc.err})
			res := doRequest[json.RawMessage](t, server, http.MethodPatch, "/point/1/charge", `{"point": 1}`)
			assert.Equal(t, tc.wantCode, res.Code)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	server := SetupRouter(panicService{})
	req := httptest.NewRequest(http.MethodGet, "/point/1", nil)
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

type panicService struct {
	stubService
}

func (panicService) GetBalance(context.Context, int64) (int64, error) {
	panic("boom")
}
