package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stride-data/waypoint/internal/geo"
	"github.com/stride-data/waypoint/internal/route"
)

const okResponse = `{
  "code": "Ok",
  "routes": [
    {
      "distance": 1523.4,
      "duration": 1180.2,
      "geometry": {
        "coordinates": [[13.405, 52.52], [13.406, 52.521], [13.409, 52.523]]
      },
      "legs": [
        {
          "steps": [
            {
              "distance": 210.0,
              "name": "Torstrasse",
              "maneuver": {"location": [13.405, 52.52], "type": "depart", "modifier": ""}
            },
            {
              "distance": 840.0,
              "name": "Mill Lane",
              "maneuver": {"location": [13.406, 52.521], "type": "turn", "modifier": "left"}
            },
            {
              "distance": 473.4,
              "name": "",
              "maneuver": {"location": [13.409, 52.523], "type": "arrive", "modifier": ""}
            }
          ]
        }
      ]
    }
  ]
}`

func TestCalculateRoute(t *testing.T) {
	t.Parallel()

	t.Run("converts the OSRM answer", func(t *testing.T) {
		t.Parallel()
		var gotPath, gotQuery string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotQuery = r.URL.RawQuery
			w.Write([]byte(okResponse))
		}))
		defer srv.Close()

		p := NewOSRMPlanner(srv.URL)
		plan, err := p.CalculateRoute(context.Background(),
			geo.Point{Lat: 52.52, Lon: 13.405}, geo.Point{Lat: 52.523, Lon: 13.409})
		require.NoError(t, err)

		assert.Contains(t, gotPath, "/route/v1/foot/13.405000,52.520000;13.409000,52.523000")
		assert.Contains(t, gotQuery, "steps=true")
		assert.Contains(t, gotQuery, "alternatives=true")

		r := plan.Primary()
		require.NotNil(t, r)
		assert.NotEmpty(t, r.ID())
		assert.InDelta(t, 1523.4, r.TotalDistanceM(), 0.001)
		assert.InDelta(t, 1180.2, r.TotalDurationS(), 0.001)
		assert.Equal(t, 3, r.NumSteps())
		assert.Len(t, r.Polyline(), 3)

		turn := r.Step(1)
		assert.Equal(t, "Turn left onto Mill Lane", turn.Instruction)
		assert.Equal(t, route.ManeuverLeft, turn.Maneuver())
		assert.InDelta(t, 52.521, turn.Anchor.Lat, 0.0001)
		assert.InDelta(t, 13.406, turn.Anchor.Lon, 0.0001)

		// Terminal anchor is the arrive step's location.
		assert.InDelta(t, 52.523, r.Terminal().Lat, 0.0001)
	})

	t.Run("NoRoute maps to the sentinel", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code": "NoRoute", "message": "Impossible route between points"}`))
		}))
		defer srv.Close()

		_, err := NewOSRMPlanner(srv.URL).CalculateRoute(context.Background(), geo.Point{}, geo.Point{})
		assert.ErrorIs(t, err, route.ErrNoRouteFound)
	})

	t.Run("empty route list maps to the sentinel", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"code": "Ok", "routes": []}`))
		}))
		defer srv.Close()

		_, err := NewOSRMPlanner(srv.URL).CalculateRoute(context.Background(), geo.Point{}, geo.Point{})
		assert.ErrorIs(t, err, route.ErrNoRouteFound)
	})

	t.Run("provider errors carry code and message", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code": "InvalidQuery", "message": "Query string malformed"}`))
		}))
		defer srv.Close()

		_, err := NewOSRMPlanner(srv.URL).CalculateRoute(context.Background(), geo.Point{}, geo.Point{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "InvalidQuery")
		assert.NotErrorIs(t, err, route.ErrNoRouteFound)
	})

	t.Run("context cancellation surfaces as a context error", func(t *testing.T) {
		t.Parallel()
		block := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-block
		}))
		defer srv.Close()
		defer close(block)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewOSRMPlanner(srv.URL).CalculateRoute(ctx, geo.Point{}, geo.Point{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("alternatives are kept in provider order", func(t *testing.T) {
		t.Parallel()
		twoRoutes := `{
  "code": "Ok",
  "routes": [
    {"distance": 900, "duration": 700,
     "geometry": {"coordinates": [[13.1, 52.1], [13.2, 52.2]]}, "legs": []},
    {"distance": 1400, "duration": 1000,
     "geometry": {"coordinates": [[13.1, 52.1], [13.3, 52.3]]}, "legs": []}
  ]
}`
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(twoRoutes))
		}))
		defer srv.Close()

		plan, err := NewOSRMPlanner(srv.URL).CalculateRoute(context.Background(), geo.Point{}, geo.Point{})
		require.NoError(t, err)
		require.Len(t, plan.Routes, 2)
		assert.InDelta(t, 900.0, plan.Primary().TotalDistanceM(), 0.001)
	})
}

func TestInstructionText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		step osrmStep
		want string
	}{
		{"left turn", osrmStep{Name: "Mill Lane", Maneuver: osrmManeuver{Type: "turn", Modifier: "left"}}, "Turn left onto Mill Lane"},
		{"slight right", osrmStep{Name: "Bridge St", Maneuver: osrmManeuver{Type: "turn", Modifier: "slight right"}}, "Turn slight right onto Bridge St"},
		{"straight", osrmStep{Name: "High St", Maneuver: osrmManeuver{Type: "continue", Modifier: "straight"}}, "Continue straight onto High St"},
		{"depart", osrmStep{Name: "Torstrasse", Maneuver: osrmManeuver{Type: "depart"}}, "Head out onto Torstrasse"},
		{"arrive ignores name", osrmStep{Name: "Plaza", Maneuver: osrmManeuver{Type: "arrive"}}, "Arrive at destination"},
		{"unknown type", osrmStep{Maneuver: osrmManeuver{Type: "roundabout", Modifier: "right"}}, "Keep right"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := instructionText(tc.step)
			assert.Equal(t, tc.want, got)

			// Classification of the rendered text must match the modifier.
			kind := route.ClassifyInstruction(got)
			switch {
			case tc.step.Maneuver.Modifier == "left":
				assert.Equal(t, route.ManeuverLeft, kind)
			case tc.step.Maneuver.Modifier == "slight right":
				assert.Equal(t, route.ManeuverRight, kind)
			}
		})
	}
}
