package tests

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type httpTestRequest struct {
	api http.Handler

	method   string
	endpoint string
	headers  map[string]string
	json     interface{}
	body     io.Reader
	login    *loginInfo
}

func newHttpTestRequest(api http.Handler, method, endpoint string) *httpTestRequest {
	return &httpTestRequest{
		api:      api,
		method:   method,
		endpoint: endpoint,
	}
}

func (r *httpTestRequest) Header(key, value string) *httpTestRequest {
	if r.headers == nil {
		r.headers = make(map[string]string)
	}
	r.headers[key] = value
	return r
}

func (r *httpTestRequest) Login(email, password string) *httpTestRequest {
	r.login = &loginInfo{Email: email, Password: password}
	return r
}

func (r *httpTestRequest) Auth(token string) *httpTestRequest {
	return r.Header("Authorization", fmt.Sprintf("Bearer %v", token))
}

func (r *httpTestRequest) Json(data interface{}) *httpTestRequest {
	r.json = data
	return r
}

func (r *httpTestRequest) Body(body io.Reader) *httpTestRequest {
	r.body = body
	return r
}

func (r *httpTestRequest) send() (*httptest.ResponseRecorder, error) {
	if r.json != nil {
		body := new(bytes.Buffer)
		err := json.NewEncoder(body).Encode(r.json)
		if err != nil {
			return nil, fmt.Errorf("error encoding json body for endpoint %v: %w", r.endpoint, err)
		}
		r.body = body
	}

	req := httptest.NewRequest(r.method, r.endpoint, r.body)
	if r.headers != nil {
		for k, v := range r.headers {
			req.Header.Add(k, v)
		}
	}

	if r.login != nil {
		req.SetBasicAuth(r.login.Email, r.login.Password)
	}

	w := httptest.NewRecorder()

	r.api.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		if w.Code == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%v request to endpoint %v returned status %d, content '%v'", r.method, r.endpoint, w.Code, w.Body.String())
	}

	return w, nil
}

// response body will be parsed into result, passing nil indicates that no result is returned.
func (r *httpTestRequest) Do(result interface{}) error {
	w, err := r.send()
	if err != nil {
		return err
	}

	if result != nil {
		err := json.NewDecoder(w.Body).Decode(result)
		if err != nil {
			return fmt.Errorf("error parsing %v response from endpoint %v: %w", r.method, r.endpoint, err)
		}
	}

	return nil
}

// DoRaw executes the request and returns the raw response body and headers,
// for endpoints that do not return json.
func (r *httpTestRequest) DoRaw() ([]byte, http.Header, error) {
	w, err := r.send()
	if err != nil {
		return nil, nil, err
	}
	return w.Body.Bytes(), w.Header(), nil
}

var ErrUnauthorized = errors.New("unauthorized")

type client struct {
	api       chi.Router
	authToken string
	userId    string
}

func (c *client) Get(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "GET", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Post(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "POST", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

func (c *client) Delete(endpoint string) *httpTestRequest {
	r := newHttpTestRequest(c.api, "DELETE", endpoint)
	if c.authToken != "" {
		return r.Auth(c.authToken)
	}
	return r
}

type loginInfo struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *client) signup(username, email, password string) (loginInfo, error) {
	body := map[string]string{
		"email": email, "username": username, "password": password,
	}

	err := c.Post("/user/signup").Json(body).Do(nil)
	if err != nil {
		return loginInfo{}, err
	}

	return loginInfo{Email: email, Password: password}, nil
}

func (c *client) login(login loginInfo) error {
	var res map[string]string
	err := c.Get("/user/login").Login(login.Email, login.Password).Do(&res)
	if err != nil {
		return err
	}

	c.authToken = res["access_token"]
	c.userId = res["user_id"]

	return nil
}

func (c *client) createTeam(name string) (string, error) {
	body := map[string]string{"name": name}

	var res map[string]string
	err := c.Post("/team/create").Json(body).Do(&res)
	return res["team_id"], err
}

func (c *client) listTeams() ([]map[string]interface{}, error) {
	var res []map[string]interface{}
	err := c.Get("/team/list").Do(&res)
	return res, err
}

func (c *client) listMembers(teamId string) ([]map[string]interface{}, error) {
	var res []map[string]interface{}
	err := c.Get(fmt.Sprintf("/team/%v/members", teamId)).Do(&res)
	return res, err
}

func (c *client) createInvitation(teamId, email, role string) (string, error) {
	body := map[string]string{"email": email, "role": role}

	var res map[string]string
	err := c.Post(fmt.Sprintf("/team/%v/invitations", teamId)).Json(body).Do(&res)
	return res["token"], err
}

func (c *client) acceptInvitation(token string) error {
	body := map[string]string{"token": token}
	return c.Post("/team/invitations/accept").Json(body).Do(nil)
}

type deletionReport struct {
	Success        bool   `json:"success"`
	Error          string `json:"error"`
	PartialCleanup bool   `json:"partial_cleanup"`

	DeletedResources struct {
		Assistants      int `json:"assistants"`
		VectorStores    int `json:"vector_stores"`
		Files           int `json:"files"`
		DatabaseRecords int `json:"database_records"`
		StorageFiles    int `json:"storage_files"`
	} `json:"deleted_resources"`
}

func (c *client) deleteTeam(teamId, confirmationName string, deleteExternal bool) (deletionReport, error) {
	body := map[string]interface{}{
		"confirmation_name":         confirmationName,
		"delete_external_resources": deleteExternal,
	}

	var report deletionReport
	err := c.Delete(fmt.Sprintf("/team/%v/", teamId)).Json(body).Do(&report)
	return report, err
}

func (c *client) createPortfolio(teamId, name string) (string, error) {
	body := map[string]string{"name": name}

	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/portfolio/%v/create", teamId)).Json(body).Do(&res)
	if err != nil {
		return "", err
	}
	return res["portfolio_id"].(string), nil
}

func (c *client) createAccount(teamId, name string) (string, error) {
	body := map[string]string{"name": name}

	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/account/%v/create", teamId)).Json(body).Do(&res)
	if err != nil {
		return "", err
	}
	return res["account_id"].(string), nil
}

func (c *client) assignPortfolios(teamId, accountId string, portfolioIds []string) error {
	body := map[string]interface{}{"portfolio_ids": portfolioIds}
	return c.Post(fmt.Sprintf("/account/%v/%v/portfolios", teamId, accountId)).Json(body).Do(nil)
}

type knowledgeEntry struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Quantity int    `json:"quantity"`
	ImageUrl string `json:"image_url"`
}

func (c *client) saveKnowledge(teamId string, accountId, portfolioId *string, records []knowledgeEntry) error {
	body := map[string]interface{}{"records": records}
	if accountId != nil {
		body["account_id"] = *accountId
	}
	if portfolioId != nil {
		body["portfolio_id"] = *portfolioId
	}
	return c.Post(fmt.Sprintf("/account/%v/knowledge", teamId)).Json(body).Do(nil)
}

func (c *client) getKnowledge(teamId string, accountId, portfolioId *string) ([]knowledgeEntry, error) {
	endpoint := fmt.Sprintf("/account/%v/knowledge", teamId)
	sep := "?"
	if accountId != nil {
		endpoint += sep + "account_id=" + *accountId
		sep = "&"
	}
	if portfolioId != nil {
		endpoint += sep + "portfolio_id=" + *portfolioId
	}

	var res []knowledgeEntry
	err := c.Get(endpoint).Do(&res)
	return res, err
}

type documentInfo struct {
	DocumentId   uuid.UUID `json:"document_id"`
	PortfolioId  uuid.UUID `json:"portfolio_id"`
	OriginalName string    `json:"original_name"`
	DocumentType string    `json:"document_type"`
	Status       string    `json:"status"`
}

func (c *client) uploadDocument(teamId, portfolioId, documentType, filename string, content []byte) (documentInfo, error) {
	body := new(bytes.Buffer)
	form := multipart.NewWriter(body)

	if err := form.WriteField("portfolio_id", portfolioId); err != nil {
		return documentInfo{}, err
	}
	if documentType != "" {
		if err := form.WriteField("document_type", documentType); err != nil {
			return documentInfo{}, err
		}
	}
	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return documentInfo{}, err
	}
	if _, err := part.Write(content); err != nil {
		return documentInfo{}, err
	}
	if err := form.Close(); err != nil {
		return documentInfo{}, err
	}

	var doc documentInfo
	err = c.Post(fmt.Sprintf("/document/%v/upload", teamId)).
		Header("Content-Type", form.FormDataContentType()).
		Body(body).
		Do(&doc)
	return doc, err
}

func (c *client) listDocuments(teamId string) ([]documentInfo, error) {
	var res []documentInfo
	err := c.Get(fmt.Sprintf("/document/%v/list", teamId)).Do(&res)
	return res, err
}

func (c *client) deleteDocument(teamId string, documentId uuid.UUID) error {
	return c.Delete(fmt.Sprintf("/document/%v/%v", teamId, documentId)).Do(nil)
}

type chatThreadInfo struct {
	ChatId      uuid.UUID `json:"chat_id"`
	ThreadId    string    `json:"thread_id"`
	AssistantId string    `json:"assistant_id"`
	Title       string    `json:"title"`
}

func (c *client) startChat(teamId, accountId, portfolioId, title string) (chatThreadInfo, error) {
	body := map[string]string{
		"account_id": accountId, "portfolio_id": portfolioId, "title": title,
	}

	var thread chatThreadInfo
	err := c.Post(fmt.Sprintf("/chat/%v/start", teamId)).Json(body).Do(&thread)
	return thread, err
}

func (c *client) listChats(teamId string) ([]chatThreadInfo, error) {
	var res []chatThreadInfo
	err := c.Get(fmt.Sprintf("/chat/%v/threads", teamId)).Do(&res)
	return res, err
}

type chatMessage struct {
	Id      string
	Role    string
	Content string
}

type sendMessageResult struct {
	Messages  []chatMessage            `json:"messages"`
	Citations []map[string]interface{} `json:"citations"`
}

func (c *client) sendMessage(teamId, threadId, message string) (sendMessageResult, error) {
	body := map[string]string{"message": message}

	var res sendMessageResult
	err := c.Post(fmt.Sprintf("/chat/%v/threads/%v/message", teamId, threadId)).Json(body).Do(&res)
	return res, err
}

func (c *client) rateMessage(teamId, threadId, messageId string, rating int) error {
	body := map[string]interface{}{"message_id": messageId, "rating": rating}
	return c.Post(fmt.Sprintf("/chat/%v/threads/%v/rate", teamId, threadId)).Json(body).Do(nil)
}

func (c *client) createNote(teamId, portfolioId, title, content string) (uuid.UUID, error) {
	body := map[string]interface{}{
		"portfolio_id": portfolioId, "title": title, "content": content,
	}

	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/note/%v/create", teamId)).Json(body).Do(&res)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(res["note_id"].(string))
}

func (c *client) listNotes(teamId string) ([]map[string]interface{}, error) {
	var res []map[string]interface{}
	err := c.Get(fmt.Sprintf("/note/%v/list", teamId)).Do(&res)
	return res, err
}

func (c *client) createNoteWithImage(teamId, portfolioId, title, content, imageUrl string) (uuid.UUID, error) {
	body := map[string]interface{}{
		"portfolio_id": portfolioId, "title": title, "content": content,
		"images": []map[string]string{{"url": imageUrl, "description": "attached image"}},
	}

	var res map[string]interface{}
	err := c.Post(fmt.Sprintf("/note/%v/create", teamId)).Json(body).Do(&res)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(res["note_id"].(string))
}

func (c *client) uploadImage(filename string, content []byte) (string, error) {
	form := new(bytes.Buffer)
	writer := multipart.NewWriter(form)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(content); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	var res map[string]string
	err = c.Post("/api/images/upload").
		Header("Content-Type", writer.FormDataContentType()).
		Body(form).
		Do(&res)
	if err != nil {
		return "", err
	}
	return res["url"], nil
}

func (c *client) fetchImage(url string) ([]byte, string, error) {
	body, headers, err := c.Get(url).DoRaw()
	if err != nil {
		return nil, "", err
	}
	return body, headers.Get("Content-Type"), nil
}
