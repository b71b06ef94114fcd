package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

func HTTPPostWithAuth(ctx context.Context, url string, body io.Reader, authName, authPswd, authToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPPost: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")
	return doWithAuth(req, authName, authPswd, authToken)
}

func HTTPDeleteWithAuth(ctx context.Context, url, authName, authPswd, authToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPDelete: %w", err)
	}
	return doWithAuth(req, authName, authPswd, authToken)
}

func doWithAuth(req *http.Request, authName, authPswd, authToken string) (*http.Response, error) {
	if authName != "" {
		req.SetBasicAuth(authName, authPswd)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := http.Client{}
	return client.Do(req)
}
