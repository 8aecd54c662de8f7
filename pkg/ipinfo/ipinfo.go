package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"netquality-tester/pkg/models"

	"github.com/spf13/viper"
)

type IPInfoResponse struct {
	IP       string `json:"ip"`
	Hostname string `json:"hostname"`
	Anycast  bool   `json:"anycast"`
	City     string `json:"city"`
	Region   string `json:"region"`
	Country  string `json:"country"`
	Loc      string `json:"loc"`
	Org      string `json:"org"`
	Postal   string `json:"postal"`
	Timezone string `json:"timezone"`
}

// GetIPInfo looks up metadata for an IP via ipinfo.io. An empty ip queries
// the caller's own address.
func GetIPInfo(ctx context.Context, ip string) (IPInfoResponse, error) {
	url := fmt.Sprintf("https://ipinfo.io/%s?token=%s", ip, viper.GetString("ipinfo.token"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return IPInfoResponse{}, err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return IPInfoResponse{}, err
	}
	defer resp.Body.Close()

	var ipInfo IPInfoResponse
	err = json.NewDecoder(resp.Body).Decode(&ipInfo)
	if err != nil {
		return IPInfoResponse{}, err
	}

	return ipInfo, nil
}

// CollectClientInfo gathers best-effort metadata about the measuring host
// for the report: the external lookup may fail without failing the run.
func CollectClientInfo(ctx context.Context) (*models.ClientInfo, error) {
	info := &models.ClientInfo{
		Device:     deviceDescription(),
		InternalIP: internalIP(),
	}

	ipInfo, err := GetIPInfo(ctx, "")
	if err != nil {
		return info, fmt.Errorf("looking up external IP info: %w", err)
	}

	info.ExternalIP = ipInfo.IP
	info.City = ipInfo.City
	info.Region = ipInfo.Region
	info.Country = ipInfo.Country
	info.Location = ipInfo.Loc

	// The "org" field carries "AS<number> <org name>"; the org name is the
	// closest thing to a provider label.
	orgParts := strings.SplitN(ipInfo.Org, " ", 2)
	if len(orgParts) == 2 {
		info.ISP = orgParts[1]
	} else {
		info.ISP = ipInfo.Org
	}

	return info, nil
}

func deviceDescription() string {
	host, err := os.Hostname()
	if err != nil {
		return runtime.GOOS
	}
	return fmt.Sprintf("%s (%s/%s)", host, runtime.GOOS, runtime.GOARCH)
}

// internalIP finds the preferred outbound address without sending traffic.
func internalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return ""
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}
