// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embedding

import "context"

// Provider 远程 embedding 提供商：一次请求对一批文本向量化，返回顺序与输入一致
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	Model() string
	Dimension() int
}
