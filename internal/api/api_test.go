package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"

	"contacts-api/internal/api"
	"contacts-api/internal/database/dbtest"
	"contacts-api/internal/models"
	"contacts-api/internal/repository"
	"contacts-api/internal/storage"
	"contacts-api/internal/storage/local"
	apimodels "contacts-api/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	. "github.com/smartystreets/goconvey/convey"
)

type recordedEvents struct {
	mu       sync.Mutex
	updated  []models.Contact
	deleted  []uint
	uploaded []string
}

func (e *recordedEvents) NotifyContactUpdated(c models.Contact) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updated = append(e.updated, c)
}

func (e *recordedEvents) NotifyContactDeleted(id uint) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, id)
}

func (e *recordedEvents) NotifyFileUploaded(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploaded = append(e.uploaded, path)
}

type fixture struct {
	router *gin.Engine
	repo   *repository.GormContactRepository
	store  *local.LocalStorage
	events *recordedEvents
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithLimit(t, 1<<20)
}

func newFixtureWithLimit(t *testing.T, maxUploadSize int64) *fixture {
	gin.SetMode(gin.TestMode)

	repo := repository.NewContactRepository(dbtest.New(t))
	store, err := local.NewLocalStorage(t.TempDir())
	So(err, ShouldBeNil)
	events := &recordedEvents{}

	router := api.NewRouter(api.Dependencies{
		Contacts:      repo,
		Storage:       store,
		Events:        events,
		MaxUploadSize: maxUploadSize,
		Logger:        zerolog.Nop(),
	})
	return &fixture{router: router, repo: repo, store: store, events: events}
}

func (f *fixture) storedFiles() []storage.FileInfo {
	files, err := f.store.List(context.Background(), storage.ContactsDirectory)
	So(err, ShouldBeNil)
	return files
}

var errBackendDown = errors.New("backend down")

// brokenRepository fails every call with a non-lookup error.
type brokenRepository struct{}

func (brokenRepository) Get(context.Context, uint) (models.Contact, error) {
	return models.Contact{}, errBackendDown
}

func (brokenRepository) List(context.Context, repository.ContactFilter, int, int) (repository.Page, error) {
	return repository.Page{}, errBackendDown
}

func (brokenRepository) Update(context.Context, uint, repository.ContactPatch) (models.Contact, error) {
	return models.Contact{}, errBackendDown
}

func (brokenRepository) Delete(context.Context, uint) error {
	return errBackendDown
}

func (brokenRepository) Create(context.Context, *models.Contact) error {
	return errBackendDown
}

func (brokenRepository) ExistsByEmail(context.Context, string) (bool, error) {
	return false, errBackendDown
}

// brokenStorage refuses every write.
type brokenStorage struct{}

func (brokenStorage) Save(context.Context, io.Reader, storage.SaveOptions) (storage.FileInfo, error) {
	return storage.FileInfo{}, errBackendDown
}

func (brokenStorage) Open(context.Context, string) (io.ReadCloser, storage.FileInfo, error) {
	return nil, storage.FileInfo{}, errBackendDown
}

func (brokenStorage) Delete(context.Context, string) error {
	return errBackendDown
}

func (brokenStorage) List(context.Context, string) ([]storage.FileInfo, error) {
	return nil, errBackendDown
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) seed(contacts ...models.Contact) []models.Contact {
	for i := range contacts {
		So(f.repo.Create(context.Background(), &contacts[i]), ShouldBeNil)
	}
	return contacts
}

func uploadRequest(filename, contentType, body string) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="contacts"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	So(err, ShouldBeNil)
	_, err = part.Write([]byte(body))
	So(err, ShouldBeNil)
	So(mw.Close(), ShouldBeNil)

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(w *httptest.ResponseRecorder, v interface{}) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

func TestUpload(t *testing.T) {
	Convey("Given the contacts API", t, func() {
		f := newFixture(t)

		Convey("When a JSON file is uploaded", func() {
			w := f.do(uploadRequest("contacts.json", "application/json", `[{"name":"Ada","email":"ada@example.com","phone":"5550100001"}]`))

			Convey("Then it is stored under the contacts namespace", func() {
				So(w.Code, ShouldEqual, http.StatusOK)

				var resp apimodels.UploadResponse
				decode(w, &resp)
				So(resp.Message, ShouldEqual, "File uploaded successfully")
				So(resp.Path, ShouldStartWith, "contacts/")
				So(resp.Path, ShouldEndWith, ".json")
				So(f.events.uploaded, ShouldResemble, []string{resp.Path})

				rc, _, err := f.store.Open(context.Background(), resp.Path)
				So(err, ShouldBeNil)
				defer rc.Close()
			})
		})

		Convey("When a .json file is sent with a generic content type", func() {
			w := f.do(uploadRequest("export.json", "application/octet-stream", `[]`))

			Convey("Then the extension is enough", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})

		Convey("When the field is missing", func() {
			req := httptest.NewRequest(http.MethodPost, "/upload", nil)
			w := f.do(req)

			Convey("Then 422 reports the field as required", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp apimodels.ValidationErrorResponse
				decode(w, &resp)
				So(resp.Errors["contacts"], ShouldResemble, []string{"The contacts field is required."})
				So(resp.Message, ShouldEqual, "The contacts field is required.")
			})
		})

		Convey("When the field is a plain form value", func() {
			form := url.Values{"contacts": {"[]"}}
			req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := f.do(req)

			Convey("Then 422 reports it is not a file", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp apimodels.ValidationErrorResponse
				decode(w, &resp)
				So(resp.Errors["contacts"], ShouldContain, "The contacts field must be a file.")
				So(resp.Message, ShouldEqual, "The contacts field must be a file. (and 1 more error)")
			})
		})

		Convey("When a text file is uploaded", func() {
			w := f.do(uploadRequest("notes.txt", "text/plain", "hello"))

			Convey("Then 422 reports the wrong type and nothing is stored", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp apimodels.ValidationErrorResponse
				decode(w, &resp)
				So(resp.Errors["contacts"], ShouldResemble, []string{"The contacts field must be a file of type: json."})

				files, err := f.store.List(context.Background(), storage.ContactsDirectory)
				So(err, ShouldBeNil)
				So(files, ShouldBeEmpty)
			})
		})

		Convey("When a binary file is named .json", func() {
			png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
			w := f.do(uploadRequest("contacts.json", "application/json", png))

			Convey("Then the content sniffing rejects it", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
			})
		})

		Convey("When plain text is named .json", func() {
			w := f.do(uploadRequest("contacts.json", "application/json", "hello, this is not json"))

			Convey("Then 422 reports the wrong type and nothing is stored", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp apimodels.ValidationErrorResponse
				decode(w, &resp)
				So(resp.Errors["contacts"], ShouldResemble, []string{"The contacts field must be a file of type: json."})
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})

		Convey("When a CSV export is named .json", func() {
			csv := "name,email,phone\nAda,ada@example.com,5550100001\n"
			w := f.do(uploadRequest("contacts.json", "application/json", csv))

			Convey("Then it is rejected as not JSON", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})

		Convey("When an empty .json file is uploaded", func() {
			w := f.do(uploadRequest("contacts.json", "application/json", ""))

			Convey("Then it is rejected as not JSON", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp apimodels.ValidationErrorResponse
				decode(w, &resp)
				So(resp.Errors["contacts"], ShouldResemble, []string{"The contacts field must be a file of type: json."})
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})

		Convey("When a large JSON array is uploaded", func() {
			entry := `{"name":"Ada","email":"ada@example.com","phone":"5550100001"}`
			body := "[" + strings.TrimSuffix(strings.Repeat(entry+",", 200), ",") + "]"
			So(len(body), ShouldBeGreaterThan, 3072)
			w := f.do(uploadRequest("contacts.json", "application/json", body))

			Convey("Then sniffing only its head still accepts it", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
			})
		})
	})

	Convey("Given an upload limit of one kilobyte", t, func() {
		f := newFixtureWithLimit(t, 1024)

		Convey("When a five kilobyte JSON file is uploaded", func() {
			entry := `{"name":"Ada","email":"ada@example.com","phone":"5550100001"}`
			body := "[" + strings.TrimSuffix(strings.Repeat(entry+",", 85), ",") + "]"
			So(len(body), ShouldBeGreaterThan, 5000)
			w := f.do(uploadRequest("contacts.json", "application/json", body))

			Convey("Then 422 reports the size limit and nothing is stored", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp apimodels.ValidationErrorResponse
				decode(w, &resp)
				So(resp.Errors["contacts"], ShouldResemble, []string{"The contacts field must not be greater than 1 kilobytes."})
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})

		Convey("When the request body exceeds the multipart allowance", func() {
			body := "[" + strings.Repeat(" ", 9<<20) + "]"
			w := f.do(uploadRequest("contacts.json", "application/json", body))

			Convey("Then the body is cut off and 422 reports the size limit", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				var resp apimodels.ValidationErrorResponse
				decode(w, &resp)
				So(resp.Errors["contacts"], ShouldResemble, []string{"The contacts field must not be greater than the allowed upload size."})
				So(f.storedFiles(), ShouldBeEmpty)
			})
		})
	})
}

func TestBackendFailures(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("Given a router whose repository and storage are failing", t, func() {
		router := api.NewRouter(api.Dependencies{
			Contacts:      brokenRepository{},
			Storage:       brokenStorage{},
			MaxUploadSize: 1 << 20,
			Logger:        zerolog.Nop(),
		})
		serve := func(req *http.Request) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			return w
		}
		shouldBeServerError := func(w *httptest.ResponseRecorder) {
			So(w.Code, ShouldEqual, http.StatusInternalServerError)
			var resp apimodels.MessageResponse
			decode(w, &resp)
			So(resp.Message, ShouldEqual, "Server Error")
			So(w.Body.String(), ShouldNotContainSubstring, errBackendDown.Error())
		}

		Convey("When contacts are listed", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/contacts?name=ada", nil))

			Convey("Then 500 Server Error is returned", func() {
				shouldBeServerError(w)
			})
		})

		Convey("When a contact is fetched", func() {
			w := serve(httptest.NewRequest(http.MethodGet, "/contacts/1", nil))

			Convey("Then 500 Server Error is returned", func() {
				shouldBeServerError(w)
			})
		})

		Convey("When a contact is updated", func() {
			req := httptest.NewRequest(http.MethodPut, "/contacts/1", strings.NewReader(`{"name":"Ada"}`))
			req.Header.Set("Content-Type", "application/json")
			w := serve(req)

			Convey("Then 500 Server Error is returned", func() {
				shouldBeServerError(w)
			})
		})

		Convey("When a contact is deleted", func() {
			w := serve(httptest.NewRequest(http.MethodDelete, "/contacts/1", nil))

			Convey("Then 500 Server Error is returned", func() {
				shouldBeServerError(w)
			})
		})

		Convey("When a valid file is uploaded", func() {
			w := serve(uploadRequest("contacts.json", "application/json", `[]`))

			Convey("Then the failed write is a 500 Server Error", func() {
				shouldBeServerError(w)
			})
		})
	})
}

func TestGetContact(t *testing.T) {
	Convey("Given a stored contact", t, func() {
		f := newFixture(t)
		c := f.seed(models.Contact{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+1-555-010-0001"})[0]

		Convey("When it is fetched by id", func() {
			w := f.do(httptest.NewRequest(http.MethodGet, fmt.Sprintf("/contacts/%d", c.ID), nil))

			Convey("Then its fields are returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var got models.Contact
				decode(w, &got)
				So(got.ID, ShouldEqual, c.ID)
				So(got.Name, ShouldEqual, "Ada Lovelace")
				So(got.Email, ShouldEqual, "ada@example.com")
				So(got.Phone, ShouldEqual, "+1-555-010-0001")
				So(w.Body.String(), ShouldContainSubstring, `"created_at"`)
			})
		})

		Convey("When an unknown or malformed id is used", func() {
			for _, path := range []string{"/contacts/999", "/contacts/abc", "/contacts/0", "/contacts/-1"} {
				for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
					w := f.do(httptest.NewRequest(method, path, strings.NewReader(`{"name":"x"}`)))
					So(w.Code, ShouldEqual, http.StatusNotFound)
				}
			}
		})
	})
}

func TestUpdateContact(t *testing.T) {
	Convey("Given a stored contact", t, func() {
		f := newFixture(t)
		c := f.seed(models.Contact{Name: "Ada", Email: "ada@example.com", Phone: "1"})[0]
		path := fmt.Sprintf("/contacts/%d", c.ID)

		put := func(contentType, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(body))
			req.Header.Set("Content-Type", contentType)
			return f.do(req)
		}
		current := func() models.Contact {
			got, err := f.repo.Get(context.Background(), c.ID)
			So(err, ShouldBeNil)
			return got
		}

		Convey("When only the phone is sent", func() {
			w := put("application/json", `{"phone":"2"}`)

			Convey("Then only the phone changes", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var resp apimodels.MessageResponse
				decode(w, &resp)
				So(resp.Message, ShouldEqual, "Contact updated successfully")

				got := current()
				So(got.Phone, ShouldEqual, "2")
				So(got.Name, ShouldEqual, "Ada")
				So(got.Email, ShouldEqual, "ada@example.com")
				So(f.events.updated, ShouldHaveLength, 1)
			})

			Convey("Then repeating it yields the same state", func() {
				first := current()
				So(put("application/json", `{"phone":"2"}`).Code, ShouldEqual, http.StatusOK)
				second := current()
				So(second.Name, ShouldEqual, first.Name)
				So(second.Email, ShouldEqual, first.Email)
				So(second.Phone, ShouldEqual, first.Phone)
			})
		})

		Convey("When fields outside name, email and phone are sent", func() {
			w := put("application/json", fmt.Sprintf(`{"id": %d, "name":"Grace"}`, c.ID+100))

			Convey("Then the id is left alone", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				got := current()
				So(got.ID, ShouldEqual, c.ID)
				So(got.Name, ShouldEqual, "Grace")
			})
		})

		Convey("When the update is form encoded", func() {
			w := put("application/x-www-form-urlencoded", "email=grace%40example.com")

			Convey("Then the form fields are applied", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				got := current()
				So(got.Email, ShouldEqual, "grace@example.com")
				So(got.Name, ShouldEqual, "Ada")
			})
		})

		Convey("When the body is empty", func() {
			w := put("application/json", "")

			Convey("Then nothing changes", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(current().Name, ShouldEqual, "Ada")
			})
		})

		Convey("When the body is malformed", func() {
			w := put("application/json", `{"name":`)

			Convey("Then 400 is returned", func() {
				So(w.Code, ShouldEqual, http.StatusBadRequest)
			})
		})
	})
}

func TestDeleteContact(t *testing.T) {
	Convey("Given a stored contact", t, func() {
		f := newFixture(t)
		c := f.seed(models.Contact{Name: "Ada"})[0]
		path := fmt.Sprintf("/contacts/%d", c.ID)

		Convey("When it is deleted twice", func() {
			first := f.do(httptest.NewRequest(http.MethodDelete, path, nil))
			second := f.do(httptest.NewRequest(http.MethodDelete, path, nil))

			Convey("Then the first succeeds and the second is not found", func() {
				So(first.Code, ShouldEqual, http.StatusOK)
				var resp apimodels.MessageResponse
				decode(first, &resp)
				So(resp.Message, ShouldEqual, "Contact deleted successfully")

				So(second.Code, ShouldEqual, http.StatusNotFound)
				So(f.events.deleted, ShouldResemble, []uint{c.ID})

				_, err := f.repo.Get(context.Background(), c.ID)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestListContacts(t *testing.T) {
	Convey("Given the contacts API", t, func() {
		f := newFixture(t)

		list := func(query string) apimodels.Paginated[models.Contact] {
			w := f.do(httptest.NewRequest(http.MethodGet, "/contacts"+query, nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			var page apimodels.Paginated[models.Contact]
			decode(w, &page)
			return page
		}

		Convey("When 25 contacts exist", func() {
			for i := 1; i <= 25; i++ {
				f.seed(models.Contact{Name: fmt.Sprintf("Contact %02d", i)})
			}

			Convey("Then they are served 10 per page over 3 pages", func() {
				first := list("")
				So(first.Total, ShouldEqual, int64(25))
				So(first.PerPage, ShouldEqual, 10)
				So(first.CurrentPage, ShouldEqual, 1)
				So(first.LastPage, ShouldEqual, 3)
				So(first.Data, ShouldHaveLength, 10)
				So(*first.From, ShouldEqual, 1)
				So(*first.To, ShouldEqual, 10)
				So(first.PrevPageURL, ShouldBeNil)
				So(*first.NextPageURL, ShouldEqual, "http://example.com/contacts?page=2")
				So(first.Path, ShouldEqual, "http://example.com/contacts")
				So(first.Links[0].Label, ShouldEqual, "&laquo; Previous")
				So(first.Links[1].Active, ShouldBeTrue)
				So(first.Links, ShouldHaveLength, 5)

				second := list("?page=2")
				So(second.Data, ShouldHaveLength, 10)
				So(second.Data[0].Name, ShouldEqual, "Contact 11")

				third := list("?page=3")
				So(third.Data, ShouldHaveLength, 5)
				So(*third.To, ShouldEqual, 25)
				So(third.NextPageURL, ShouldBeNil)
			})

			Convey("Then a bad page number falls back to the first page", func() {
				So(list("?page=zero").CurrentPage, ShouldEqual, 1)
				So(list("?page=-3").CurrentPage, ShouldEqual, 1)
			})

			Convey("Then a page past the end is empty", func() {
				page := list("?page=9")
				So(page.Data, ShouldBeEmpty)
				So(page.From, ShouldBeNil)
				So(page.To, ShouldBeNil)
			})
		})

		Convey("When contacts are filtered", func() {
			f.seed(
				models.Contact{Name: "Ada Lovelace", Email: "ada@math.org"},
				models.Contact{Name: "Grace Hopper", Email: "grace@navy.mil"},
				models.Contact{Name: "Adam Smith", Email: "adam@econ.org"},
			)

			Convey("Then name filters by substring", func() {
				page := list("?name=ada")
				So(page.Total, ShouldEqual, int64(2))
				So(page.Data[0].Name, ShouldEqual, "Ada Lovelace")
				So(page.Data[1].Name, ShouldEqual, "Adam Smith")
			})

			Convey("Then name and email combine", func() {
				page := list("?name=ada&email=math")
				So(page.Total, ShouldEqual, int64(1))
				So(page.Data[0].Name, ShouldEqual, "Ada Lovelace")
			})

			Convey("Then links keep the filters", func() {
				page := list("?name=ada")
				So(page.FirstPageURL, ShouldEqual, "http://example.com/contacts?name=ada&page=1")
			})

			Convey("Then no match returns an empty data array", func() {
				w := f.do(httptest.NewRequest(http.MethodGet, "/contacts?email=nobody", nil))
				So(w.Body.String(), ShouldContainSubstring, `"data":[]`)
				So(w.Body.String(), ShouldContainSubstring, `"total":0`)
			})
		})
	})
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	Convey("Given a router with a failing database ping", t, func() {
		router := api.NewRouter(api.Dependencies{
			Ping:   func() error { return errors.New("connection refused") },
			Logger: zerolog.Nop(),
		})

		Convey("When the health endpoint is called", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			Convey("Then it reports unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			})
		})

		Convey("When a preflight request arrives", func() {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/contacts", nil))

			Convey("Then CORS headers are returned without a body", func() {
				So(w.Code, ShouldEqual, http.StatusNoContent)
				So(w.Header().Get("Access-Control-Allow-Origin"), ShouldEqual, "*")
			})
		})
	})
}
