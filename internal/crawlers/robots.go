package crawlers

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/RecoveryAshes/poicrawler/internal/utils"
	"github.com/temoto/robotstxt"
)

// RobotsChecker 按主机缓存 robots.txt 规则
// 获取失败时放行
type RobotsChecker struct {
	client    *http.Client
	userAgent string

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

// NewRobotsChecker 创建 robots 检查器,client 为 nil 时使用10秒超时的默认客户端
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		groups:    make(map[string]*robotstxt.Group),
	}
}

// Allowed 判断是否允许抓取该URL
func (rc *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}

	group := rc.group(ctx, u)
	if group == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

func (rc *RobotsChecker) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	host := u.Scheme + "://" + u.Host

	rc.mu.Lock()
	group, ok := rc.groups[host]
	rc.mu.Unlock()
	if ok {
		return group
	}

	group = rc.fetch(ctx, host)
	if ctx.Err() != nil {
		return group
	}

	rc.mu.Lock()
	rc.groups[host] = group
	rc.mu.Unlock()
	return group
}

func (rc *RobotsChecker) fetch(ctx context.Context, host string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	if rc.userAgent != "" {
		req.Header.Set("User-Agent", rc.userAgent)
	}

	resp, err := rc.client.Do(req)
	if err != nil {
		utils.Debugf("获取robots.txt失败 [%s]: %v", host, err)
		return nil
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		utils.Debugf("解析robots.txt失败 [%s]: %v", host, err)
		return nil
	}
	return data.FindGroup(rc.userAgent)
}
