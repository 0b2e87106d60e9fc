package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// CityEntry 城市列表中的一项
type CityEntry struct {
	City    string
	Country string
}

// ParseCityEntry 解析 "City" 或 "City, Country" 格式
func ParseCityEntry(line, defaultCountry string) (CityEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return CityEntry{}, false
	}

	city, country, found := strings.Cut(line, ",")
	entry := CityEntry{City: strings.TrimSpace(city), Country: defaultCountry}
	if found && strings.TrimSpace(country) != "" {
		entry.Country = strings.TrimSpace(country)
	}
	if entry.City == "" {
		return CityEntry{}, false
	}
	return entry, true
}

// ReadCitiesFromFile 从文件中读取城市列表,跳过空行和注释行
func ReadCitiesFromFile(path, defaultCountry string) ([]CityEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开城市文件失败: %w", err)
	}
	defer file.Close()

	cities := make([]CityEntry, 0)
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		entry, ok := ParseCityEntry(scanner.Text(), defaultCountry)
		if !ok {
			continue
		}

		key := strings.ToLower(entry.City)
		if seen[key] {
			Warnf("跳过重复城市 (行 %d): %s", lineNum, entry.City)
			continue
		}
		seen[key] = true
		cities = append(cities, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取城市文件失败: %w", err)
	}

	if len(cities) == 0 {
		return nil, fmt.Errorf("城市文件中没有有效的城市")
	}

	Infof("从文件加载了 %d 个城市", len(cities))
	return cities, nil
}

// ParseCityList 解析命令行城市参数,每项可为 "City" 或 "City:Country"
func ParseCityList(items []string, defaultCountry string) []CityEntry {
	cities := make([]CityEntry, 0, len(items))
	for _, item := range items {
		entry, ok := ParseCityEntry(strings.Replace(item, ":", ",", 1), defaultCountry)
		if ok {
			cities = append(cities, entry)
		}
	}
	return cities
}
