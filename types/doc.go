// Copyright (c) nodegraph Authors.
// Licensed under the MIT License.

/*
Package types 提供 nodegraph 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、config 等上层模块
提供统一的错误契约。Retry 的 retry_on_error_code、Try 的 on_error_code
以及 Map 的迭代失败都以这里的错误码进行匹配。

# 核心类型

  - ErrorCode: 封闭的错误码集合（TIMEOUT / NODE_EXECUTION / INVALID_OUTPUTS 等）
  - Error: 结构化错误（Code、Message、Retryable、Cause）

# 主要能力

  - 错误工具链：AsError / GetErrorCode / IsErrorCode / IsRetryable / WrapError
*/
package types
