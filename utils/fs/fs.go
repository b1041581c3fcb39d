/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// IsExist reports whether path exists.
func IsExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

// GetFilePaths 返回匹配的文件路径列表
//
// loadFilePattern is a directory followed by a file name pattern, e.g.
// "displays/*.yaml". Directories matching an excluded pattern are skipped.
func GetFilePaths(loadFilePattern string, excludedPatterns ...string) ([]string, error) {
	return GetFilePathsMatching(filepath.Dir(loadFilePattern), []string{filepath.Base(loadFilePattern)}, excludedPatterns...)
}

// GetFilePathsMatching walks dir and returns the sorted files whose name
// matches any of patterns.
func GetFilePathsMatching(dir string, patterns []string, excludedPatterns ...string) ([]string, error) {
	var paths []string
	// 遍历目录
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && isMatch(d, excludedPatterns...) {
				return filepath.SkipDir // 跳过该子目录
			}
			return nil
		}
		// 如果是文件，且文件名匹配输入参数
		if isMatch(d, patterns...) && !isMatch(d, excludedPatterns...) {
			paths = append(paths, path)
		}
		return nil
	})
	sort.Strings(paths)
	return paths, err
}

func isMatch(d fs.DirEntry, patterns ...string) bool {
	for _, item := range patterns {
		if matched, _ := filepath.Match(item, d.Name()); matched {
			return true
		}
	}
	return false
}
