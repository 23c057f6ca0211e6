package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/barscan/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"github.com/gorilla/websocket"
)

// RegisterSteps binds the step definitions to sc.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the upload service answers with file id "([^"]*)"$`, tc.theUploadServiceAnswersWithFileID)
	sc.Step(`^the upload service answers with status (\d+)$`, tc.theUploadServiceAnswersWithStatus)
	sc.Step(`^the upload service answers without a file id$`, tc.theUploadServiceAnswersWithoutAFileID)
	sc.Step(`^the upload service takes (\d+) seconds to answer$`, tc.theUploadServiceTakesSecondsToAnswer)
	sc.Step(`^the upload timeout is (\d+) seconds?$`, tc.theUploadTimeoutIsSeconds)
	sc.Step(`^the server allows (\d+) requests? per minute$`, tc.theServerAllowsRequestsPerMinute)

	sc.Step(`^a QR image containing "([^"]*)"$`, tc.aQRImageContaining)
	sc.Step(`^a QR image containing "([^"]*)" rotated by (\d+) degrees$`, tc.aQRImageContainingRotatedBy)
	sc.Step(`^a QR image containing "([^"]*)" in the lower half of a label$`, tc.aQRImageInTheLowerHalf)
	sc.Step(`^a blank image$`, tc.aBlankImage)
	sc.Step(`^a file that is not an image$`, tc.aFileThatIsNotAnImage)
	sc.Step(`^an empty file$`, tc.anEmptyFile)

	sc.Step(`^I post the image to the decode endpoint$`, tc.iPostTheImage)
	sc.Step(`^I post the image to the decode endpoint (\d+) times$`, tc.iPostTheImageTimes)
	sc.Step(`^I post the image in the form field "([^"]*)"$`, tc.iPostTheImageInField)
	sc.Step(`^I post a form without a file$`, tc.iPostAFormWithoutAFile)
	sc.Step(`^I send the image over the websocket$`, tc.iSendTheImageOverTheWebsocket)
	sc.Step(`^I request the health endpoint$`, tc.iRequestTheHealthEndpoint)

	sc.Step(`^the response status should be (\d+)$`, tc.theResponseStatusShouldBe)
	sc.Step(`^the response should be successful with data "([^"]*)"$`, tc.theResponseShouldBeSuccessfulWithData)
	sc.Step(`^the response should fail with message "([^"]*)"$`, tc.theResponseShouldFailWithMessage)
	sc.Step(`^the file id should be "([^"]*)"$`, tc.theFileIDShouldBe)
	sc.Step(`^the file id should be null$`, tc.theFileIDShouldBeNull)
	sc.Step(`^the upload service should have received (\d+) files?$`, tc.theUploadServiceShouldHaveReceived)
	sc.Step(`^the uploaded file should be the original image$`, tc.theUploadedFileShouldBeTheOriginalImage)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, tc.theResponseFieldShouldBe)
}

func (tc *TestContext) setUploads(f *FakeUploadService) {
	if tc.Uploads != nil {
		tc.Uploads.Close()
	}
	tc.Uploads = f
}

func (tc *TestContext) theUploadServiceAnswersWithFileID(id string) error {
	body, err := json.Marshal(map[string]string{"file_id": id})
	if err != nil {
		return err
	}
	tc.setUploads(NewFakeUploadService(http.StatusOK, string(body)))
	return nil
}

func (tc *TestContext) theUploadServiceAnswersWithStatus(status int) error {
	tc.setUploads(NewFakeUploadService(status, `{"error":"unavailable"}`))
	return nil
}

func (tc *TestContext) theUploadServiceAnswersWithoutAFileID() error {
	tc.setUploads(NewFakeUploadService(http.StatusOK, `{"ok":true}`))
	return nil
}

func (tc *TestContext) theUploadServiceTakesSecondsToAnswer(seconds int) error {
	if tc.Uploads == nil {
		return fmt.Errorf("no upload service configured")
	}
	tc.Uploads.SetDelay(time.Duration(seconds) * time.Second)
	return nil
}

func (tc *TestContext) theUploadTimeoutIsSeconds(seconds int) error {
	tc.UploadTimeout = time.Duration(seconds) * time.Second
	return nil
}

func (tc *TestContext) theServerAllowsRequestsPerMinute(n int) error {
	tc.RateLimitPerMinute = n
	return nil
}

func (tc *TestContext) setImage(img image.Image, name string) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	tc.ImageData = buf.Bytes()
	tc.ImageName = name
	return nil
}

func (tc *TestContext) aQRImageContaining(content string) error {
	qr, err := testutil.GenerateQR(testutil.DefaultQRConfig(content))
	if err != nil {
		return err
	}
	return tc.setImage(qr, "qr.png")
}

func (tc *TestContext) aQRImageContainingRotatedBy(content string, degrees int) error {
	qr, err := testutil.GenerateQR(testutil.DefaultQRConfig(content))
	if err != nil {
		return err
	}
	canvas := testutil.CreateTestImage(320, 320, color.White)
	img := image.Image(testutil.Paste(canvas, qr, image.Pt(40, 40)))
	switch degrees {
	case 0:
	case 90:
		img = imaging.Rotate90(img)
	case 180:
		img = imaging.Rotate180(img)
	case 270:
		img = imaging.Rotate270(img)
	default:
		return fmt.Errorf("unsupported rotation %d", degrees)
	}
	return tc.setImage(img, fmt.Sprintf("qr_%d.png", degrees))
}

func (tc *TestContext) aQRImageInTheLowerHalf(content string) error {
	qr, err := testutil.GenerateQR(testutil.DefaultQRConfig(content))
	if err != nil {
		return err
	}
	label := testutil.CreateTestImage(400, 700, color.White)
	b := qr.Bounds()
	return tc.setImage(testutil.Paste(label, qr, image.Pt((400-b.Dx())/2, 700-b.Dy()-40)), "label.png")
}

func (tc *TestContext) aBlankImage() error {
	return tc.setImage(testutil.CreateTestImage(200, 200, color.White), "blank.png")
}

func (tc *TestContext) aFileThatIsNotAnImage() error {
	tc.ImageData = []byte("%PDF-1.4 definitely not a raster image")
	tc.ImageName = "document.jpg"
	return nil
}

func (tc *TestContext) anEmptyFile() error {
	tc.ImageData = []byte{}
	tc.ImageName = "empty.png"
	return nil
}

func (tc *TestContext) iPostTheImage() error {
	return tc.postMultipart("image", tc.ImageName, tc.ImageData)
}

func (tc *TestContext) iPostTheImageTimes(n int) error {
	for range n {
		if err := tc.iPostTheImage(); err != nil {
			return err
		}
	}
	return nil
}

func (tc *TestContext) iPostTheImageInField(field string) error {
	return tc.postMultipart(field, tc.ImageName, tc.ImageData)
}

func (tc *TestContext) iPostAFormWithoutAFile() error {
	return tc.postMultipart("comment", "", []byte("no file here"))
}

func (tc *TestContext) postMultipart(field, filename string, data []byte) error {
	if err := tc.ensureServer(); err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename == "" {
		if err := mw.WriteField(field, string(data)); err != nil {
			return err
		}
	} else {
		part, err := mw.CreateFormFile(field, filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, tc.Server.URL+"/api/qr/decode", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return tc.do(req)
}

func (tc *TestContext) iRequestTheHealthEndpoint() error {
	if err := tc.ensureServer(); err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodGet, tc.Server.URL+"/health", nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return err
	}
	tc.LastStatusCode = resp.StatusCode
	tc.LastHeaders = resp.Header
	tc.LastRawBody = raw.String()
	tc.LastBody = nil
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw.Bytes(), &tc.LastBody); err != nil {
			return fmt.Errorf("invalid JSON response %q: %w", tc.LastRawBody, err)
		}
	}
	return nil
}

func (tc *TestContext) iSendTheImageOverTheWebsocket() error {
	if err := tc.ensureServer(); err != nil {
		return err
	}

	url := "ws" + strings.TrimPrefix(tc.Server.URL, "http") + "/ws/qr/decode"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err := conn.SetReadDeadline(time.Now().Add(30 * time.Second)); err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, tc.ImageData); err != nil {
		return err
	}

	var body map[string]any
	if err := conn.ReadJSON(&body); err != nil {
		return fmt.Errorf("websocket read: %w", err)
	}
	tc.LastStatusCode = http.StatusOK
	tc.LastBody = body
	return nil
}

func (tc *TestContext) theResponseStatusShouldBe(status int) error {
	if tc.LastStatusCode != status {
		return fmt.Errorf("expected status %d, got %d (body: %s)", status, tc.LastStatusCode, tc.LastRawBody)
	}
	return nil
}

func (tc *TestContext) theResponseShouldBeSuccessfulWithData(data string) error {
	if tc.LastBody == nil {
		return fmt.Errorf("no JSON response recorded")
	}
	if tc.LastBody["success"] != true {
		return fmt.Errorf("expected success, got %v", tc.LastBody)
	}
	if tc.LastBody["data"] != data {
		return fmt.Errorf("expected data %q, got %v", data, tc.LastBody["data"])
	}
	if _, ok := tc.LastBody["message"]; ok {
		return fmt.Errorf("unexpected message in successful response: %v", tc.LastBody)
	}
	return nil
}

func (tc *TestContext) theResponseShouldFailWithMessage(message string) error {
	if tc.LastBody == nil {
		return fmt.Errorf("no JSON response recorded")
	}
	if tc.LastBody["success"] != false {
		return fmt.Errorf("expected failure, got %v", tc.LastBody)
	}
	if tc.LastBody["message"] != message {
		return fmt.Errorf("expected message %q, got %v", message, tc.LastBody["message"])
	}
	if _, ok := tc.LastBody["data"]; ok {
		return fmt.Errorf("unexpected data in failed response: %v", tc.LastBody)
	}
	return nil
}

func (tc *TestContext) theFileIDShouldBe(id string) error {
	if got := tc.LastBody["file_id"]; got != id {
		return fmt.Errorf("expected file_id %q, got %v", id, got)
	}
	return nil
}

func (tc *TestContext) theFileIDShouldBeNull() error {
	got, ok := tc.LastBody["file_id"]
	if !ok {
		return fmt.Errorf("file_id missing from response: %v", tc.LastBody)
	}
	if got != nil {
		return fmt.Errorf("expected file_id null, got %v", got)
	}
	return nil
}

func (tc *TestContext) theUploadServiceShouldHaveReceived(n int) error {
	var got int
	if tc.Uploads != nil {
		got = len(tc.Uploads.Received())
	}
	if got != n {
		return fmt.Errorf("expected %d uploads, got %d", n, got)
	}
	return nil
}

func (tc *TestContext) theUploadedFileShouldBeTheOriginalImage() error {
	received := tc.Uploads.Received()
	if len(received) == 0 {
		return fmt.Errorf("no upload received")
	}
	last := received[len(received)-1]
	if !bytes.Equal(last.Data, tc.ImageData) {
		return fmt.Errorf("uploaded %d bytes, want the %d original bytes", len(last.Data), len(tc.ImageData))
	}
	if last.Filename != tc.ImageName {
		return fmt.Errorf("uploaded filename %q, want %q", last.Filename, tc.ImageName)
	}
	if last.APIKey != FakeAPIKey {
		return fmt.Errorf("uploaded with api key %q", last.APIKey)
	}
	return nil
}

func (tc *TestContext) theResponseFieldShouldBe(field, value string) error {
	if got := fmt.Sprint(tc.LastBody[field]); got != value {
		return fmt.Errorf("expected %s=%q, got %q", field, value, got)
	}
	return nil
}
