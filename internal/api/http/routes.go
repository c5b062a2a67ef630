package httpapi

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/i474232898/windserver/internal/weather"
)

var validate = validator.New()

const (
	msgNoCurrentData  = "No current data available"
	msgInvalidTime    = "Invalid params, expecting: timeIso=ISO_TIME_STRING"
	msgInvalidLimit   = "Invalid params, expecting: searchLimit=INTEGER_DAYS"
	msgNoDataInWindow = "No data within searchLimit"
)

// SnapshotFinder is what the query endpoints need from the locator.
type SnapshotFinder interface {
	Latest(ctx context.Context) (weather.Identifier, error)
	Nearest(ctx context.Context, t time.Time, limitDays int) (weather.Identifier, error)
	Open(id weather.Identifier) (io.ReadCloser, error)
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. Only the listed
// origins receive CORS headers.
func RegisterRoutes(app *fiber.App, finder SnapshotFinder, allowedOrigins []string) {
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOrigins, ","),
		AllowMethods: "GET,HEAD,OPTIONS",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("Wind server : go to /latest for last wind data.")
	})

	app.Get("/alive", func(c *fiber.Ctx) error {
		return c.SendString("Wind server is alive")
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "windserver",
		})
	})

	app.Get("/latest", func(c *fiber.Ctx) error {
		id, err := finder.Latest(c.UserContext())
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, msgNoCurrentData)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to look up latest data")
		}
		return sendArtifact(c, finder, id)
	})

	app.Get("/nearest", func(c *fiber.Ctx) error {
		var q nearestQuery
		if err := q.bind(c); err != nil {
			return err
		}

		id, err := finder.Nearest(c.UserContext(), q.Time, q.SearchLimit)
		if err != nil {
			if errors.Is(err, weather.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, msgNoDataInWindow)
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to look up nearest data")
		}
		return sendArtifact(c, finder, id)
	})
}

func sendArtifact(c *fiber.Ctx, finder SnapshotFinder, id weather.Identifier) error {
	rc, err := finder.Open(id)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read snapshot "+id.Key())
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Set("X-Snapshot", id.Key())
	// fasthttp closes the stream once the body is written.
	return c.SendStream(rc)
}

// nearestQuery holds query parameters for the nearest endpoint.
type nearestQuery struct {
	TimeISO     string `validate:"required"`
	SearchLimit int    `validate:"gte=0"`
	Time        time.Time
}

func (q *nearestQuery) bind(c *fiber.Ctx) error {
	q.TimeISO = c.Query("timeIso")
	if raw := c.Query("searchLimit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, msgInvalidLimit)
		}
		q.SearchLimit = n
	}

	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "SearchLimit" {
			return fiber.NewError(fiber.StatusBadRequest, msgInvalidLimit)
		}
		return fiber.NewError(fiber.StatusBadRequest, msgInvalidTime)
	}

	ts, err := parseTime(q.TimeISO)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, msgInvalidTime)
	}
	q.Time = ts
	return nil
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15",
	"2006-01-02",
}

// parseTime accepts ISO 8601 timestamps; values without a zone are UTC.
func parseTime(s string) (time.Time, error) {
	for _, layout := range isoLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, errors.New("invalid time format; use ISO 8601")
}
