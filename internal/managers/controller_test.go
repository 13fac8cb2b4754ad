package managers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/fluidwatch/internal/controllers"
	grpccontroller "github.com/chrissnell/fluidwatch/internal/controllers/grpc"
	"github.com/chrissnell/fluidwatch/internal/controllers/restserver"
	"github.com/chrissnell/fluidwatch/internal/device"
	"github.com/chrissnell/fluidwatch/internal/feed"
	"github.com/chrissnell/fluidwatch/internal/grpcutil"
	"github.com/chrissnell/fluidwatch/internal/rate"
	"github.com/chrissnell/fluidwatch/internal/samples"
	"github.com/chrissnell/fluidwatch/internal/session"
	"github.com/chrissnell/fluidwatch/internal/window"
	"github.com/chrissnell/fluidwatch/pkg/config"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestService(t *testing.T, ctx context.Context) *controllers.Service {
	t.Helper()
	g := samples.Geometry{IntervalMinutes: 15, HorizonHours: 168}

	sensor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make([]float64, g.Points())
		for i := range data {
			data[i] = 10
		}
		json.NewEncoder(w).Encode(data)
	}))
	t.Cleanup(sensor.Close)

	logger := zap.NewNop().Sugar()
	client := device.NewClient(sensor.URL, 2*time.Second, logger)
	store := feed.NewStore(g)
	refresher := feed.NewRefresher(client, g, store, nil, logger)
	return &controllers.Service{
		Store:      store,
		Refresher:  refresher,
		Session:    session.New(ctx, client, refresher, 70, logger),
		Table:      window.DefaultTable(),
		Thresholds: rate.DefaultThresholds(),
		Location:   time.UTC,
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestControllerManagerSharesPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	port := freePort(t)
	service := newTestService(t, ctx)
	service.Refresh(ctx)

	cm, err := NewControllerManager(ctx, &wg, []config.ControllerData{
		{Type: "rest", RESTServer: &config.RESTServerData{ListenAddr: "127.0.0.1", Port: port}},
		{Type: "grpc", GRPC: &config.GRPCData{ListenAddr: "127.0.0.1", Port: port}},
	}, service, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewControllerManager() error = %v", err)
	}

	ctrls := cm.(*controllerManager).controllers
	if len(ctrls) != 1 {
		t.Fatalf("%d controllers, want one shared listener", len(ctrls))
	}
	if _, ok := ctrls[0].(*sharedListener); !ok {
		t.Fatalf("controller is %T, want *sharedListener", ctrls[0])
	}

	if err := cm.StartControllers(); err != nil {
		t.Fatalf("StartControllers() error = %v", err)
	}
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	resp, err := http.Get("http://" + addr + "/api/latest")
	if err != nil {
		t.Fatalf("GET /api/latest error = %v", err)
	}
	var st controllers.Status
	err = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK || !st.FetchOK {
		t.Fatalf("REST status %d, body %+v, err %v", resp.StatusCode, st, err)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient() error = %v", err)
	}
	defer conn.Close()

	callCtx, callCancel := context.WithTimeout(ctx, 5*time.Second)
	defer callCancel()
	res, err := grpcutil.NewViewServiceClient(conn).GetView(callCtx, &grpcutil.ViewRequest{RangeHours: 24})
	if err != nil {
		t.Fatalf("GetView() over the shared port error = %v", err)
	}
	if len(res.Buckets) != 24 {
		t.Errorf("%d buckets, want 24", len(res.Buckets))
	}
}

func TestControllerManagerSeparatePorts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	cm, err := NewControllerManager(ctx, &wg, []config.ControllerData{
		{Type: "rest", RESTServer: &config.RESTServerData{ListenAddr: "127.0.0.1", Port: 18080}},
		{Type: "grpc", GRPC: &config.GRPCData{ListenAddr: "127.0.0.1", Port: 18081}},
	}, newTestService(t, ctx), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewControllerManager() error = %v", err)
	}

	ctrls := cm.(*controllerManager).controllers
	if len(ctrls) != 2 {
		t.Fatalf("%d controllers, want 2", len(ctrls))
	}
	if _, ok := ctrls[0].(*restserver.Controller); !ok {
		t.Errorf("first controller is %T", ctrls[0])
	}
	if _, ok := ctrls[1].(*grpccontroller.Controller); !ok {
		t.Errorf("second controller is %T", ctrls[1])
	}
}

func TestControllerManagerSharedPortRejectsTLS(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	_, err := NewControllerManager(ctx, &wg, []config.ControllerData{
		{Type: "rest", RESTServer: &config.RESTServerData{ListenAddr: "127.0.0.1", Port: 8443, Cert: "c.pem", Key: "k.pem"}},
		{Type: "grpc", GRPC: &config.GRPCData{ListenAddr: "127.0.0.1", Port: 8443}},
	}, newTestService(t, ctx), zap.NewNop().Sugar())
	if err == nil {
		t.Fatal("NewControllerManager() accepted TLS on a shared port")
	}
}
