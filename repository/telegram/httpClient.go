package telegramrepo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const DefaultBaseURL = "https://api.telegram.org"

type httpRepo struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTP returns a Bot API client. An empty baseURL means DefaultBaseURL.
func NewHTTP(baseURL, token string, client *http.Client) Repo {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpRepo{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
}

func (r *httpRepo) call(ctx context.Context, method string, body map[string]any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/%s", r.baseURL, r.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTransport, method, err)
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s: decode: %v (status %s)", ErrTransport, method, err, resp.Status)
	}
	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%w: %s: result: %v", ErrTransport, method, err)
		}
	}
	return nil
}

func (r *httpRepo) SendMessage(ctx context.Context, chatID int64, text string) error {
	return r.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

func (r *httpRepo) SendWebAppButton(ctx context.Context, chatID int64, text string, btn Button) error {
	return r.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
		"reply_markup": map[string]any{
			"inline_keyboard": [][]map[string]any{{
				{"text": btn.Text, "web_app": map[string]string{"url": btn.WebAppURL}},
			}},
		},
	}, nil)
}

func (r *httpRepo) CreateInvoiceLink(ctx context.Context, req InvoiceReq) (string, error) {
	var link string
	err := r.call(ctx, "createInvoiceLink", map[string]any{
		"title":          req.Title,
		"description":    req.Description,
		"payload":        req.Payload,
		"provider_token": "",
		"currency":       req.Currency,
		"prices":         []map[string]any{{"label": req.Label, "amount": req.Amount}},
	}, &link)
	if err != nil {
		return "", err
	}
	if link == "" {
		return "", fmt.Errorf("%w: createInvoiceLink: empty link", ErrTransport)
	}
	return link, nil
}

func (r *httpRepo) AnswerPreCheckoutQuery(ctx context.Context, queryID string, ok bool, errMsg string) error {
	body := map[string]any{
		"pre_checkout_query_id": queryID,
		"ok":                    ok,
	}
	if !ok {
		body["error_message"] = errMsg
	}
	return r.call(ctx, "answerPreCheckoutQuery", body, nil)
}

func (r *httpRepo) RefundStarPayment(ctx context.Context, userID int64, chargeID string) error {
	return r.call(ctx, "refundStarPayment", map[string]any{
		"user_id":                    userID,
		"telegram_payment_charge_id": chargeID,
	}, nil)
}

func (r *httpRepo) SetWebhook(ctx context.Context, url, secretToken string) error {
	body := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "pre_checkout_query"},
	}
	if secretToken != "" {
		body["secret_token"] = secretToken
	}
	return r.call(ctx, "setWebhook", body, nil)
}
